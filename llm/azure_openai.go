package llm

import (
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultAzureAPIVersion is the Azure OpenAI REST API version used when none
// is configured.
const DefaultAzureAPIVersion = "2024-10-21"

// AzureOpenAILLM talks to an Azure OpenAI chat deployment.
type AzureOpenAILLM struct {
	chatClient
	apiVersion string
}

var _ StreamingChat = (*AzureOpenAILLM)(nil)

// NewAzureOpenAILLM creates an Azure OpenAI chat model. Empty arguments fall
// back to AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY,
// AZURE_OPENAI_CHAT_DEPLOYMENT and AZURE_OPENAI_API_VERSION.
func NewAzureOpenAILLM(endpoint, apiKey, deployment, apiVersion string, opts ...Option) *AzureOpenAILLM {
	if endpoint == "" {
		endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	}
	if apiKey == "" {
		apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
	}
	if deployment == "" {
		deployment = os.Getenv("AZURE_OPENAI_CHAT_DEPLOYMENT")
	}
	if apiVersion == "" {
		apiVersion = os.Getenv("AZURE_OPENAI_API_VERSION")
		if apiVersion == "" {
			apiVersion = DefaultAzureAPIVersion
		}
	}

	config := openai.DefaultAzureConfig(apiKey, endpoint)
	config.APIVersion = apiVersion
	// Deployment names are used verbatim.
	config.AzureModelMapperFunc = func(model string) string { return model }

	return &AzureOpenAILLM{
		chatClient: newChatClient(openai.NewClientWithConfig(config), deployment, "azure openai", opts),
		apiVersion: apiVersion,
	}
}

// Deployment returns the deployment name.
func (a *AzureOpenAILLM) Deployment() string {
	return a.model
}

// APIVersion returns the REST API version in use.
func (a *AzureOpenAILLM) APIVersion() string {
	return a.apiVersion
}
