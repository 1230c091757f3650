// Package template renders the text/template expressions carried in the
// arguments of built-in functions.
package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/gridfn/pkg/models"
)

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"join":  strings.Join,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// Data is what an expression sees for one invocation of a function.
func Data(fc *models.FunctionContext, args any) map[string]any {
	return map[string]any{
		"args":       args,
		"region":     fc.RegionName,
		"member":     fc.MemberID,
		"bucket":     fc.Bucket,
		"filter":     fc.Filter.Values(),
		"re_execute": fc.IsReExecute,
	}
}

// RenderForFunction renders input against Data(fc, args).
func RenderForFunction(input string, fc *models.FunctionContext, args any) (any, error) {
	return Render(input, Data(fc, args))
}

// Render executes templateStr and types the output: JSON objects and arrays
// are decoded, numbers become float64 and booleans bool. Anything else is
// returned as the trimmed string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.New("expression").Funcs(funcs).Option("missingkey=error").Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %q: %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template %q: %w", templateStr, err)
	}

	return coerce(strings.TrimSpace(buf.String()))
}

func coerce(result string) (any, error) {
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var v any

		err := json.Unmarshal([]byte(result), &v)
		if err != nil {
			return nil, fmt.Errorf("template rendered invalid json: %w", err)
		}

		return v, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
