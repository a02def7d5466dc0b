package rekognition

// Config holds configuration for the AWS Rekognition encoder
type Config struct {
	// Region is the AWS region where the Rekognition service will be used
	// (e.g., "us-east-1")
	Region string
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Region: "us-east-1",
	}
}
