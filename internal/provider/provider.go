package provider

import "context"

// FaceProvider define a interface para provedores de reconhecimento facial.
// The station consumes exactly three judgments: where faces are, what a
// face's embedding is, and how similar two embeddings are. The similarity
// threshold itself lives with the caller, not the provider.
type FaceProvider interface {
	// DetectFaces detecta faces na imagem e retorna informações sobre cada uma
	DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error)

	// Embed extrai o embedding da face mais proeminente da imagem.
	// Returns domain.ErrNoFaceDetected when the image holds no face.
	Embed(ctx context.Context, image []byte) ([]float64, error)

	// Similarity calcula similaridade entre dois embeddings.
	// Retorna valor entre 0.0 (diferentes) e 1.0 (idênticos)
	Similarity(ctx context.Context, embedding1, embedding2 []float64) (float64, error)
}

// DetectedFace represents a detected face in the image
type DetectedFace struct {
	BoundingBox  BoundingBox `json:"bounding_box"`
	Confidence   float64     `json:"confidence"`
	QualityScore float64     `json:"quality_score"`
}

// BoundingBox represents the face area in the image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
