package extraction

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/espressomap/espressomap/constants"
)

// CompressForUpload re-encodes imageBytes as JPEG under the request byte
// budget, stepping the quality down until the result fits or the quality
// floor is reached (the floor result is used even if still over budget, to
// keep behavior bounded). JPEG input already under budget passes through
// unchanged.
func CompressForUpload(imageBytes []byte) ([]byte, string, error) {
	if len(imageBytes) <= constants.MaxUploadBytes && isJPEG(imageBytes) {
		return imageBytes, "image/jpeg", nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode: %v", ErrImageConversion, err)
	}

	var out []byte
	for quality := constants.JPEGQualityStart; ; quality -= constants.JPEGQualityStep {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", fmt.Errorf("%w: encode q=%d: %v", ErrImageConversion, quality, err)
		}
		out = buf.Bytes()
		if len(out) <= constants.MaxUploadBytes || quality-constants.JPEGQualityStep < constants.JPEGQualityFloor {
			break
		}
	}
	return out, "image/jpeg", nil
}

func isJPEG(b []byte) bool {
	return len(b) >= 3 && b[0] == 0xff && b[1] == 0xd8 && b[2] == 0xff
}
