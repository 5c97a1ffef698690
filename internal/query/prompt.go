package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildSQLPrompt renders the SQL generation prompt: table schema, sample
// rows, known category values, and the query patterns the model should
// follow. history, when non-empty, is the formatted prior conversation so
// follow-up questions ("that customer", "the 9th one") resolve. system,
// when non-empty, is the chat's custom instructions.
func BuildSQLPrompt(question, table string, info *TableInfo, history, system string) string {
	var distinctSection string
	if len(info.DistinctValues) > 0 {
		enc, _ := json.Marshal(info.DistinctValues)
		distinctSection = "\nKey column values: " + string(enc)
	}

	colParts := make([]string, len(info.Columns))
	for i, c := range info.Columns {
		colParts[i] = fmt.Sprintf("%s (%s)", c.Name, c.Type)
	}

	samples := info.SampleRows
	if len(samples) > 5 {
		samples = samples[:5]
	}
	sampleJSON, _ := json.Marshal(stringifyRows(samples))

	return fmt.Sprintf(`You are a PostgreSQL expert. Generate an accurate SQL query for this question.

TABLE: %s
COLUMNS (with types): %s
SAMPLE DATA: %s%s

QUERY PATTERNS (use the appropriate pattern):

1. RANKING ("what rank is X", "position of X"):
   CRITICAL: Calculate rank for ALL rows first, then filter OUTSIDE the CTE!
   WITH ranked AS (
     SELECT entity, SUM(metric) as total,
            ROW_NUMBER() OVER (ORDER BY SUM(metric) DESC) as rank
     FROM table
     GROUP BY entity  -- NO WHERE clause here!
   )
   SELECT * FROM ranked WHERE entity ILIKE '%%search%%'  -- Filter AFTER ranking!

2. TOP N ("top 5", "best 10"):
   SELECT entity, SUM(metric) as total FROM table
   GROUP BY entity ORDER BY total DESC LIMIT N

3. COMPARISON ("X vs Y", "compare"):
   SELECT entity, SUM(metric) as total FROM table
   WHERE entity ILIKE '%%X%%' OR entity ILIKE '%%Y%%' GROUP BY entity

4. PERCENTAGE ("%% of total", "share"):
   SELECT entity, SUM(metric) as value,
          ROUND((100.0 * SUM(metric) / (SELECT SUM(metric) FROM table))::numeric, 2) as percentage
   FROM table GROUP BY entity

5. FILTERING ("in region X", "where"):
   Use ILIKE '%%value%%' for text columns, = for exact matches

6. AGGREGATION ("total", "sum", "average", "count"):
   Use SUM(), AVG(), COUNT(), MIN(), MAX() with GROUP BY
   IMPORTANT: For numeric columns, use them directly - no casting needed!
   Example: AVG(numeric_column), not NULLIF(column,'')::numeric

7. TREND ("by month", "over time"):
   GROUP BY time_column ORDER BY time_column

IMPORTANT PostgreSQL Rules:
- ROUND with decimals MUST cast to numeric: ROUND(value::numeric, 2) NOT ROUND(value, 2)
- For already numeric columns, just use: ROUND(AVG(column)::numeric, 2)
- Do NOT use NULLIF or empty string checks on numeric columns - they already handle NULL properly
- Only use NULLIF for TEXT columns that might have empty strings

%s%sQUESTION: %s

OUTPUT: Only the SQL query, nothing else.`,
		table, strings.Join(colParts, ", "), sampleJSON, distinctSection,
		instructionSection(system), historySection(history), question)
}

func historySection(history string) string {
	if strings.TrimSpace(history) == "" {
		return ""
	}
	return history + "\n\n"
}

func instructionSection(system string) string {
	if strings.TrimSpace(system) == "" {
		return ""
	}
	return "CUSTOM INSTRUCTIONS (set by the user for this chat, follow them):\n" + system + "\n\n"
}

// BuildAnswerPrompt renders the natural-language answer prompt over the
// query results. Only the first ten rows feed the model. system, when
// non-empty, is the chat's custom instructions.
func BuildAnswerPrompt(question string, rows []map[string]any, system string) string {
	sample := rows
	if len(sample) > 10 {
		sample = sample[:10]
	}
	sampleJSON, _ := json.Marshal(stringifyRows(sample))

	return fmt.Sprintf(`Answer the question in natural language based on the query results below.

%sQuestion: %s

Data (%d rows):
%s

RESPONSE GUIDELINES:
1. Start with a brief, friendly sentence answering the question directly
2. Present data as a simple numbered or bulleted list - DO NOT use markdown tables
3. Each list item should be clear and readable, like: "April: 87.23 days"
4. Format values for readability:
   - Currency/Sales/Revenue: Use Indian format - ₹38.85 Cr (crores), ₹19.49 L (lakhs)
   - Round decimals to 2 places
5. Keep the response concise and easy to scan
6. Do not use markdown table syntax (no | or --- characters)`,
		instructionSection(system), question, len(rows), sampleJSON)
}

// TableChoice describes one candidate table for schema selection.
type TableChoice struct {
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
}

// BuildSchemaPrompt renders the table selection prompt used when several
// datasets exist and none was named explicitly.
func BuildSchemaPrompt(question string, choices []TableChoice) string {
	enc, _ := json.MarshalIndent(choices, "", "  ")
	return fmt.Sprintf(`You are a data analyst. Select the best table for this question.

Available Tables:
%s

Question: %q

Return ONLY the table_name in JSON format: {"table_name": "..."}`, enc, question)
}

// ParseSchemaChoice decodes the schema selection response, stripping any
// code fences the model added.
func ParseSchemaChoice(response string) (string, error) {
	clean := strings.TrimSpace(response)
	clean = strings.ReplaceAll(clean, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")

	var out struct {
		TableName string `json:"table_name"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(clean)), &out); err != nil {
		return "", fmt.Errorf("parsing schema choice: %w", err)
	}
	if out.TableName == "" {
		return "", fmt.Errorf("schema choice missing table_name")
	}
	return out.TableName, nil
}

// stringifyRows renders non-JSON-native values (timestamps, numerics) as
// strings so the prompt JSON always encodes.
func stringifyRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		converted := make(map[string]any, len(row))
		for k, v := range row {
			switch v.(type) {
			case nil, bool, string, int, int32, int64, float32, float64:
				converted[k] = v
			default:
				converted[k] = stringValue(v)
			}
		}
		out[i] = converted
	}
	return out
}
