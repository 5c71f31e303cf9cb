package core

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

const inputSize = 224

// ImageNet normalization constants, matching how the classifiers were
// trained.
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// preprocessImage resizes to the model input resolution and normalizes into
// CHW float32 order.
func preprocessImage(img image.Image) []float32 {
	resized := resize.Resize(inputSize, inputSize, img, resize.Lanczos3)

	data := make([]float32, 3*inputSize*inputSize)
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()

			idx := y*inputSize + x
			data[idx] = (float32(r)/65535.0 - imagenetMean[0]) / imagenetStd[0]
			data[inputSize*inputSize+idx] = (float32(g)/65535.0 - imagenetMean[1]) / imagenetStd[1]
			data[2*inputSize*inputSize+idx] = (float32(b)/65535.0 - imagenetMean[2]) / imagenetStd[2]
		}
	}

	return data
}
