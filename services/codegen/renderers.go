package codegen

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// rendered holds template inputs for one node plus the imports it needs.
type rendered struct {
	data    map[string]any
	imports []string
}

func execute(tmpl *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// first returns the first variable bound to port, if any.
func first(inputs Bindings, port string) (string, bool) {
	if vars := inputs[port]; len(vars) > 0 {
		return vars[0], true
	}
	return "", false
}

func (e *Emitter) renderIndicator(params map[string]any, inputs Bindings) (rendered, error) {
	name, _ := params["indicator"].(string)
	factor, ok := e.catalog.Factor(name)
	if !ok {
		return rendered{}, fmt.Errorf("unknown indicator %q", name)
	}

	source, ok := first(inputs, "source")
	if !ok {
		var err error
		if source, err = priceVar(params["source"]); err != nil {
			return rendered{}, err
		}
	}
	period, err := pyInt(params["period"])
	if err != nil {
		return rendered{}, fmt.Errorf("period: %w", err)
	}

	expr, err := execute(factor.Expression, map[string]any{"Source": source, "Period": period})
	if err != nil {
		return rendered{}, fmt.Errorf("render indicator %s: %w", name, err)
	}
	return rendered{
		data:    map[string]any{"Expression": expr},
		imports: factor.Imports,
	}, nil
}

func (e *Emitter) renderCondition(params map[string]any, inputs Bindings) (rendered, error) {
	name, _ := params["operator"].(string)
	op, ok := e.catalog.Operator(name)
	if !ok {
		return rendered{}, fmt.Errorf("unknown operator %q", name)
	}

	left, ok := first(inputs, "left")
	if !ok {
		var err error
		if left, err = priceVar(params["left"]); err != nil {
			return rendered{}, fmt.Errorf("left operand: %w", err)
		}
	}

	right, ok := first(inputs, "right")
	switch {
	case ok:
	case params["right"] != nil:
		var err error
		if right, err = priceVar(params["right"]); err != nil {
			return rendered{}, fmt.Errorf("right operand: %w", err)
		}
	case params["threshold"] != nil:
		var err error
		if right, err = pyNumber(params["threshold"]); err != nil {
			return rendered{}, fmt.Errorf("threshold: %w", err)
		}
	default:
		return rendered{}, errors.New("condition has no right operand")
	}

	expr, err := execute(op.Expression, map[string]any{"Left": left, "Right": right})
	if err != nil {
		return rendered{}, fmt.Errorf("render operator %s: %w", name, err)
	}
	return rendered{
		data:    map[string]any{"Expression": expr},
		imports: op.Imports,
	}, nil
}

func renderSignal(params map[string]any, inputs Bindings) (rendered, error) {
	triggers := inputs["trigger"]
	if len(triggers) == 0 {
		return rendered{}, errors.New("signal has no trigger")
	}
	action, _ := params["action"].(string)
	if action != "BUY" && action != "SELL" {
		return rendered{}, fmt.Errorf("unknown signal action %q", action)
	}
	return rendered{data: map[string]any{
		"Trigger": strings.Join(triggers, " & "),
		"Action":  pyString(action),
	}}, nil
}

func renderPosition(params map[string]any, inputs Bindings) (rendered, error) {
	signal, ok := first(inputs, "signal")
	if !ok {
		signal = "None"
	}
	allocation, err := pyPercent(params["allocation"])
	if err != nil {
		return rendered{}, fmt.Errorf("allocation: %w", err)
	}
	sizing, _ := params["sizing"].(string)
	return rendered{data: map[string]any{
		"Signal":     signal,
		"Sizing":     pyString(sizing),
		"Allocation": allocation,
	}}, nil
}

func renderStopLoss(params map[string]any, inputs Bindings) (rendered, error) {
	r, err := renderExit(params, inputs)
	if err != nil {
		return rendered{}, err
	}
	trailing, err := pyBool(params["trailing"])
	if err != nil {
		return rendered{}, fmt.Errorf("trailing: %w", err)
	}
	r.data["Trailing"] = trailing
	return r, nil
}

func renderStopProfit(params map[string]any, inputs Bindings) (rendered, error) {
	return renderExit(params, inputs)
}

func renderExit(params map[string]any, inputs Bindings) (rendered, error) {
	order, ok := first(inputs, "order")
	if !ok {
		return rendered{}, errors.New("exit is not attached to an order")
	}
	percent, err := pyPercent(params["percent"])
	if err != nil {
		return rendered{}, fmt.Errorf("percent: %w", err)
	}
	return rendered{data: map[string]any{
		"Order":   order,
		"Percent": percent,
	}}, nil
}
