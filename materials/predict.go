package materials

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"time"

	"github.com/ahmadzakiakmal/weldledger/apperr"
)

// PredictInput holds the four properties the welding model reads.
type PredictInput struct {
	FlexuralStrength    *float64 `json:"flexuralStrength"`
	TensileStrength     *float64 `json:"tensileStrength"`
	ThermalConductivity *float64 `json:"thermalConductivity"`
	Porosity            *float64 `json:"porosity"`
}

func (in PredictInput) validate() error {
	return require(
		field{"flexuralStrength", in.FlexuralStrength},
		field{"tensileStrength", in.TensileStrength},
		field{"thermalConductivity", in.ThermalConductivity},
		field{"porosity", in.Porosity},
	)
}

// Prediction is the model output.
type Prediction struct {
	HeatInput       float64 `json:"heatInput"`
	CoolingTime     float64 `json:"coolingTime"`
	WeldingStrength float64 `json:"weldingStrength"`
}

// Predictor estimates welding parameters for a material.
type Predictor interface {
	Predict(ctx context.Context, in PredictInput) (*Prediction, error)
}

const defaultPredictTimeout = 30 * time.Second

// ScriptPredictor runs an external command with the four properties appended
// to Args (flexural, tensile, thermal, porosity) and decodes the JSON it
// prints on stdout.
type ScriptPredictor struct {
	Command string
	Args    []string
	Timeout time.Duration

	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewScriptPredictor(command string, args ...string) *ScriptPredictor {
	return &ScriptPredictor{Command: command, Args: args, Timeout: defaultPredictTimeout, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "", "Prediction command failed").WithDetail(stderr.String())
	}
	return out, err
}

func (p *ScriptPredictor) Predict(ctx context.Context, in PredictInput) (*Prediction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	run := p.run
	if run == nil {
		run = runCommand
	}

	args := append([]string{}, p.Args...)
	for _, v := range []float64{*in.FlexuralStrength, *in.TensileStrength, *in.ThermalConductivity, *in.Porosity} {
		args = append(args, strconv.FormatFloat(v, 'f', -1, 64))
	}
	out, err := run(ctx, p.Command, args...)
	if err != nil {
		if _, tagged := apperr.As(err); tagged {
			return nil, err
		}
		return nil, apperr.Wrap(err, apperr.CodeInternal, "", "Prediction command failed")
	}

	var pred Prediction
	if err := json.Unmarshal(bytes.TrimSpace(out), &pred); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "", "Prediction output is not valid JSON")
	}
	return &pred, nil
}
