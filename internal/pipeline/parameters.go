package pipeline

import (
	"fmt"
	"regexp"
	"strconv"

	"vipspatchbay/internal/graph"
)

// placeholderPattern matches the printf verbs spec.md §4.2 step (d) cares
// about: %s and %d. Order of the matches is the order positional
// parameter_template arguments must be supplied in.
var placeholderPattern = regexp.MustCompile(`%[sd]`)

// assembledParameters is the result of spec.md §4.2 step (d): the block's
// mapped settings split into the bare positional tokens and the
// printf-formatted template fragment, both ready to hand to the
// Executor.
type assembledParameters struct {
	Positional       []string
	TemplateFragment string
}

// assembleParameters applies parameter_mappings to the instance's
// settings, then splits the mapped values between positional argv tokens
// and the tokens consumed by parameter_template, per spec.md §4.2 step
// (d):
//
//   - P = number of %s/%d placeholders in parameter_template
//   - G = len(gui_fields); G must be >= P or this is a configuration error
//   - the first G-P entries (in gui_fields order) are positional
//   - the remaining P entries are formatted into parameter_template
func assembleParameters(blockType *graph.BlockType, settings map[string]interface{}) (assembledParameters, error) {
	guiFields, err := blockType.GUIFieldNames()
	if err != nil {
		return assembledParameters{}, err
	}
	mappings, err := blockType.Mappings()
	if err != nil {
		return assembledParameters{}, err
	}

	placeholders := placeholderPattern.FindAllString(blockType.ParameterTemplate, -1)
	p := len(placeholders)
	g := len(guiFields)
	if g < p {
		return assembledParameters{}, fmt.Errorf("parameter_template has %d placeholders but gui_fields has only %d entries", p, g)
	}

	mapped := make([]string, g)
	for i, field := range guiFields {
		raw := settings[field]
		rawStr := toRawString(raw)
		if fieldMap, ok := mappings[field]; ok {
			if substituted, ok := fieldMap[rawStr]; ok {
				mapped[i] = substituted
				continue
			}
		}
		mapped[i] = rawStr
	}

	positional := mapped[:g-p]
	templateValues := mapped[g-p:]

	fragment, err := formatTemplate(blockType.ParameterTemplate, placeholders, templateValues)
	if err != nil {
		return assembledParameters{}, err
	}

	return assembledParameters{Positional: positional, TemplateFragment: fragment}, nil
}

// formatTemplate renders parameter_template with templateValues, coercing
// each value to an int when its corresponding verb is %d.
func formatTemplate(template string, placeholders []string, templateValues []string) (string, error) {
	args := make([]interface{}, len(templateValues))
	for i, v := range templateValues {
		if i < len(placeholders) && placeholders[i] == "%d" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return "", fmt.Errorf("value %q for %%d placeholder is not an integer: %w", v, err)
			}
			args[i] = n
		} else {
			args[i] = v
		}
	}
	return fmt.Sprintf(template, args...), nil
}

// toRawString renders a settings value (decoded from JSON, so it is a
// string, float64, bool, or nil) as the text parameter_mappings keys are
// expressed in.
func toRawString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
