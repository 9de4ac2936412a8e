package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultTitanImageModel is the Bedrock image model used when none is configured.
const DefaultTitanImageModel = "amazon.titan-image-generator-v2:0"

// bedrockInvoker is the part of the Bedrock runtime client used here.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockImages generates images with an Amazon Titan model on Bedrock.
type BedrockImages struct {
	client bedrockInvoker
	model  string
}

// NewBedrockImages loads the default AWS credential chain for region.
func NewBedrockImages(ctx context.Context, region, model string) (*BedrockImages, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newBedrockImages(bedrockruntime.NewFromConfig(awsCfg), model), nil
}

func newBedrockImages(client bedrockInvoker, model string) *BedrockImages {
	if model == "" {
		model = DefaultTitanImageModel
	}
	return &BedrockImages{client: client, model: model}
}

type titanRequest struct {
	TaskType              string              `json:"taskType"`
	TextToImageParams     titanTextParams     `json:"textToImageParams"`
	ImageGenerationConfig titanGenerateConfig `json:"imageGenerationConfig"`
}

type titanTextParams struct {
	Text string `json:"text"`
}

type titanGenerateConfig struct {
	NumberOfImages int `json:"numberOfImages"`
	Height         int `json:"height"`
	Width          int `json:"width"`
}

type titanResponse struct {
	Images []string `json:"images"`
	Error  string   `json:"error,omitempty"`
}

// GenerateImage renders one square PNG and returns it as a data URI.
func (b *BedrockImages) GenerateImage(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(titanRequest{
		TaskType:              "TEXT_IMAGE",
		TextToImageParams:     titanTextParams{Text: prompt},
		ImageGenerationConfig: titanGenerateConfig{NumberOfImages: 1, Height: 1024, Width: 1024},
	})
	if err != nil {
		return "", fmt.Errorf("marshal titan request: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("invoke %s: %w", b.model, wrapFatalError(err))
	}

	var res titanResponse
	if err := json.Unmarshal(out.Body, &res); err != nil {
		return "", fmt.Errorf("decode titan response: %w", err)
	}
	if res.Error != "" {
		return "", fmt.Errorf("titan: %s", res.Error)
	}
	if len(res.Images) == 0 {
		return "", errors.New("no image was generated by the API")
	}

	raw, err := base64.StdEncoding.DecodeString(res.Images[0])
	if err != nil {
		return "", fmt.Errorf("decode titan image: %w", err)
	}
	return DataURI("image/png", raw), nil
}
