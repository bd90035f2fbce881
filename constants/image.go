package constants

// ImageExtension is the fixed extension for stored menu photos.
const ImageExtension = ".jpg"

// MaxUploadBytes is the byte budget for an extraction request payload.
// Images are recompressed until they fit under it.
const MaxUploadBytes = 2_000_000

// JPEG recompression bounds: quality starts at Start and drops by Step
// until the image fits the budget or Floor is reached.
const (
	JPEGQualityStart = 85
	JPEGQualityStep  = 10
	JPEGQualityFloor = 25
)
