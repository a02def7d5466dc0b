package rekognition

import (
	"context"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

// landmarkOrder is the canonical landmark sequence used to build embeddings.
// Rekognition does not expose neural embeddings, so the embedding here is the
// face's landmark geometry normalized into its bounding box. Coarser than a
// neural vector, but stable for the same face under similar conditions.
var landmarkOrder = []types.LandmarkType{
	types.LandmarkTypeEyeLeft,
	types.LandmarkTypeEyeRight,
	types.LandmarkTypeNose,
	types.LandmarkTypeMouthLeft,
	types.LandmarkTypeMouthRight,
	types.LandmarkTypeLeftEyeBrowLeft,
	types.LandmarkTypeLeftEyeBrowRight,
	types.LandmarkTypeLeftEyeBrowUp,
	types.LandmarkTypeRightEyeBrowLeft,
	types.LandmarkTypeRightEyeBrowRight,
	types.LandmarkTypeRightEyeBrowUp,
	types.LandmarkTypeLeftEyeLeft,
	types.LandmarkTypeLeftEyeRight,
	types.LandmarkTypeLeftEyeUp,
	types.LandmarkTypeLeftEyeDown,
	types.LandmarkTypeRightEyeLeft,
	types.LandmarkTypeRightEyeRight,
	types.LandmarkTypeRightEyeUp,
	types.LandmarkTypeRightEyeDown,
	types.LandmarkTypeNoseLeft,
	types.LandmarkTypeNoseRight,
	types.LandmarkTypeMouthUp,
	types.LandmarkTypeMouthDown,
	types.LandmarkTypeLeftPupil,
	types.LandmarkTypeRightPupil,
	types.LandmarkTypeUpperJawlineLeft,
	types.LandmarkTypeMidJawlineLeft,
	types.LandmarkTypeChinBottom,
	types.LandmarkTypeMidJawlineRight,
	types.LandmarkTypeUpperJawlineRight,
}

// embeddingDimension is two coordinates per canonical landmark.
var embeddingDimension = len(landmarkOrder) * 2

// Provider implements the provider.FaceProvider interface using AWS Rekognition
type Provider struct {
	api API
}

// Ensure Provider implements provider.FaceProvider interface at compile time
var _ provider.FaceProvider = (*Provider)(nil)

// NewProvider creates a Rekognition-backed encoder
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	api, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}

	return &Provider{api: api}, nil
}

// NewProviderWithAPI builds a Provider around an existing API client
func NewProviderWithAPI(api API) *Provider {
	return &Provider{api: api}
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) == 0 {
		return domain.ErrInvalidImage
	}
	if len(image) < minImageSize {
		return domain.ErrInvalidImage.WithError(fmt.Errorf("image too small (%d bytes, minimum %d)", len(image), minImageSize))
	}
	if len(image) > maxImageSize {
		return domain.ErrInvalidImage.WithError(fmt.Errorf("image too large (%d bytes, maximum %d)", len(image), maxImageSize))
	}
	return nil
}

// DetectFaces detects faces in an image using the AWS Rekognition DetectFaces API.
// Returns an empty slice if no faces are detected (not an error).
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	if err := validateImage(image); err != nil {
		return nil, err
	}

	output, err := p.detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", classifyError(err))
	}

	faces := make([]provider.DetectedFace, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		face := provider.DetectedFace{
			QualityScore: qualityScore(detail.Quality),
		}

		// Every field on FaceDetail is optional in the API contract.
		if b := detail.BoundingBox; b != nil && b.Left != nil && b.Top != nil && b.Width != nil && b.Height != nil {
			face.BoundingBox = provider.BoundingBox{
				X:      float64(*b.Left),
				Y:      float64(*b.Top),
				Width:  float64(*b.Width),
				Height: float64(*b.Height),
			}
		}
		if detail.Confidence != nil {
			face.Confidence = float64(*detail.Confidence)
		}

		faces = append(faces, face)
	}

	return faces, nil
}

// Embed builds an embedding for the most prominent face in the image.
// Returns domain.ErrNoFaceDetected when the image holds no face.
func (p *Provider) Embed(ctx context.Context, image []byte) ([]float64, error) {
	if err := validateImage(image); err != nil {
		return nil, err
	}

	output, err := p.detect(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("embed face: %w", classifyError(err))
	}

	detail := largestFace(output.FaceDetails)
	if detail == nil {
		return nil, domain.ErrNoFaceDetected
	}

	return landmarkEmbedding(detail), nil
}

// Similarity computes cosine similarity between two landmark embeddings.
// The vectors are local data, no API round trip is needed.
func (p *Provider) Similarity(_ context.Context, embedding1, embedding2 []float64) (float64, error) {
	if len(embedding1) != embeddingDimension || len(embedding2) != embeddingDimension {
		return 0, domain.ErrInvalidImage.WithError(
			fmt.Errorf("embedding dimension mismatch: %d and %d, want %d", len(embedding1), len(embedding2), embeddingDimension))
	}

	return cosineSimilarity(embedding1, embedding2), nil
}

func (p *Provider) detect(ctx context.Context, image []byte) (*rekognition.DetectFacesOutput, error) {
	input := &rekognition.DetectFacesInput{
		Image: &types.Image{
			Bytes: image,
		},
		Attributes: []types.Attribute{types.AttributeAll},
	}

	return p.api.DetectFaces(ctx, input)
}

// largestFace picks the face with the biggest bounding box area
func largestFace(details []types.FaceDetail) *types.FaceDetail {
	var best *types.FaceDetail
	bestArea := 0.0

	for i := range details {
		d := &details[i]
		b := d.BoundingBox
		if b == nil || b.Left == nil || b.Top == nil || b.Width == nil || b.Height == nil {
			continue
		}
		area := float64(*d.BoundingBox.Width) * float64(*d.BoundingBox.Height)
		if best == nil || area > bestArea {
			best = d
			bestArea = area
		}
	}

	return best
}

// landmarkEmbedding flattens the face's landmarks, in canonical order, into a
// fixed-length vector. Coordinates are normalized into the bounding box and
// centered, then the vector is L2-normalized so cosine similarity behaves.
func landmarkEmbedding(detail *types.FaceDetail) []float64 {
	box := detail.BoundingBox

	byType := make(map[types.LandmarkType][2]float64, len(detail.Landmarks))
	for _, lm := range detail.Landmarks {
		if lm.X == nil || lm.Y == nil {
			continue
		}
		x := (float64(*lm.X) - float64(*box.Left)) / float64(*box.Width)
		y := (float64(*lm.Y) - float64(*box.Top)) / float64(*box.Height)
		byType[lm.Type] = [2]float64{x, y}
	}

	embedding := make([]float64, 0, embeddingDimension)
	for _, lt := range landmarkOrder {
		coords, ok := byType[lt]
		if !ok {
			// Missing landmark sits at the box center, contributing nothing
			// after centering.
			coords = [2]float64{0.5, 0.5}
		}
		embedding = append(embedding, coords[0]-0.5, coords[1]-0.5)
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range embedding {
			embedding[i] /= norm
		}
	}

	return embedding
}

// qualityScore folds Rekognition's brightness/sharpness into a 0-1 score
func qualityScore(q *types.ImageQuality) float64 {
	if q == nil || q.Brightness == nil || q.Sharpness == nil {
		return 0
	}
	return (float64(*q.Brightness) + float64(*q.Sharpness)) / 200.0
}

func cosineSimilarity(a, b []float64) float64 {
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
