// Package builtin provides the demo tools served by the toolstream CLI.
package builtin

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/petal-labs/toolstream/tool"
)

// EchoInput is the input of the echo tool.
type EchoInput struct {
	Text string `json:"text" jsonschema:"description=Text to echo back"`
}

// EchoOutput is the output of the echo tool.
type EchoOutput struct {
	Text string `json:"text"`
}

// SumInput is the input of the sum_numbers tool.
type SumInput struct {
	A float64 `json:"a" jsonschema:"description=First number"`
	B float64 `json:"b" jsonschema:"description=Second number"`
}

// SumOutput is the output of the sum_numbers tool.
type SumOutput struct {
	Result      float64 `json:"result"`
	Calculation string  `json:"calculation"`
}

// SummariseInput is the input of the summarise_points tool.
type SummariseInput struct {
	Title   string   `json:"title" jsonschema:"description=Heading for the summary"`
	Bullets []string `json:"bullets" jsonschema:"description=Points to summarise in order"`
	DelayMS int      `json:"delay_ms,omitempty" jsonschema:"description=Pause before each point in milliseconds,default=50,minimum=0,maximum=5000"`
}

// All returns every built-in tool in registration order.
func All() []tool.Registration {
	return []tool.Registration{
		Echo(),
		Sum(),
		SummarisePoints(),
	}
}

// Filter returns the built-in tools allowed by keep.
func Filter(keep func(name string) bool) []tool.Registration {
	var out []tool.Registration
	for _, reg := range All() {
		if keep == nil || keep(reg.Name) {
			out = append(out, reg)
		}
	}
	return out
}

// Echo returns the text it is given.
func Echo() tool.Registration {
	return tool.NewSingle("echo", "Echo the provided text", func(_ context.Context, in EchoInput) (any, error) {
		return EchoOutput{Text: in.Text}, nil
	})
}

// Sum adds two numbers.
func Sum() tool.Registration {
	return tool.NewSingle("sum_numbers", "Calculate the sum of two numbers", func(_ context.Context, in SumInput) (any, error) {
		result := in.A + in.B
		return SumOutput{
			Result:      result,
			Calculation: fmt.Sprintf("%s + %s = %s", formatNumber(in.A), formatNumber(in.B), formatNumber(result)),
		}, nil
	})
}

// SummarisePoints streams a progress message, one item per bullet and a
// closing summary, pausing DelayMS before each bullet.
func SummarisePoints() tool.Registration {
	return tool.NewStreaming("summarise_points", "Stream a bullet-by-bullet summary", summarise)
}

func summarise(ctx context.Context, in SummariseInput) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		delay := time.Duration(in.DelayMS) * time.Millisecond

		if !yield(map[string]any{
			"message": fmt.Sprintf("Summarising %d points for %q", len(in.Bullets), in.Title),
		}, nil) {
			return
		}

		for i, bullet := range in.Bullets {
			if err := sleep(ctx, delay); err != nil {
				yield(nil, err)
				return
			}
			if !yield(map[string]any{"index": i + 1, "point": bullet}, nil) {
				return
			}
		}

		yield(map[string]any{
			"summary": fmt.Sprintf("%s: %d points", in.Title, len(in.Bullets)),
			"count":   len(in.Bullets),
		}, nil)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
