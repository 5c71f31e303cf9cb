package core

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initOnnxRuntime() error {
	ortInitOnce.Do(func() {
		if dylib := os.Getenv("ONNX_RUNTIME_DYLIB"); dylib != "" {
			ort.SetSharedLibraryPath(dylib)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// OnnxClassifier runs a binary classification head exported to ONNX: input
// 1x3x224x224, output a single logit. The session is created lazily on first
// use so a missing weights file is reported as a domain rejection per request,
// the same way the original per-model predict scripts behave, instead of
// failing startup.
type OnnxClassifier struct {
	weightsPath string

	mu       sync.Mutex
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	loadErr  error
	loadOnce sync.Once
}

var _ Classifier = &OnnxClassifier{}

func NewOnnxClassifier(weightsPath string) *OnnxClassifier {
	return &OnnxClassifier{weightsPath: weightsPath}
}

func (c *OnnxClassifier) load() error {
	c.loadOnce.Do(func() {
		if err := initOnnxRuntime(); err != nil {
			c.loadErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
			return
		}

		input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputSize, inputSize))
		if err != nil {
			c.loadErr = fmt.Errorf("failed to create input tensor: %w", err)
			return
		}

		output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
		if err != nil {
			input.Destroy()
			c.loadErr = fmt.Errorf("failed to create output tensor: %w", err)
			return
		}

		session, err := ort.NewAdvancedSession(c.weightsPath,
			[]string{"input"}, []string{"output"},
			[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
			nil)
		if err != nil {
			input.Destroy()
			output.Destroy()
			c.loadErr = fmt.Errorf("failed to create ONNX session for %s: %w", c.weightsPath, err)
			return
		}

		c.input, c.output, c.session = input, output, session
	})
	return c.loadErr
}

func (c *OnnxClassifier) Classify(ctx context.Context, image []byte) (Prediction, error) {
	if _, err := os.Stat(c.weightsPath); err != nil {
		if os.IsNotExist(err) {
			return Reject(fmt.Sprintf("Model file not found at %s", c.weightsPath)), nil
		}
		return Prediction{}, fmt.Errorf("failed to stat model file %s: %w", c.weightsPath, err)
	}

	img, err := decodeImage(image)
	if err != nil {
		// Bytes that do not decode as an image are the classifier's judgment
		// that the input is not a valid medical image.
		return Reject(err.Error()), nil
	}

	if err := c.load(); err != nil {
		return Prediction{}, err
	}

	inputData := preprocessImage(img)

	// The session's tensors are shared state; one inference at a time.
	c.mu.Lock()
	defer c.mu.Unlock()

	copy(c.input.GetData(), inputData)
	if err := c.session.Run(); err != nil {
		return Prediction{}, fmt.Errorf("inference failed: %w", err)
	}

	logit := float64(c.output.GetData()[0])
	return Binary(sigmoid(logit)), nil
}

func (c *OnnxClassifier) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.input != nil {
		c.input.Destroy()
	}
	if c.output != nil {
		c.output.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
	c.input, c.output, c.session = nil, nil, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
