package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/internal/dataflows"
	"github.com/dyike/PolyCortex/models"
)

type SearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type SearchOutput struct {
	Provider string                `json:"provider"`
	Query    string                `json:"query"`
	Results  []models.SearchResult `json:"results"`
}

func searchParams(provider string) map[string]*schema.ParameterInfo {
	return map[string]*schema.ParameterInfo{
		"query": {
			Type:     schema.String,
			Desc:     fmt.Sprintf("Search query sent to %s", provider),
			Required: true,
		},
		"max_results": {
			Type: schema.Integer,
			Desc: "Maximum number of results to return",
		},
	}
}

func newTavilyTool(k *Toolkit) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name:        consts.ToolSearchTavily,
			Desc:        "Search the web with Tavily. Good for recent news and general coverage of the event behind the market.",
			ParamsOneOf: schema.NewParamsOneOfByParams(searchParams("Tavily")),
		},
		searchFunc(k, k.Tavily),
	)
}

func newExaTool(k *Toolkit) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name:        consts.ToolSearchExa,
			Desc:        "Search the web with Exa. Good for in-depth articles, analysis and primary sources.",
			ParamsOneOf: schema.NewParamsOneOfByParams(searchParams("Exa")),
		},
		searchFunc(k, k.Exa),
	)
}

func searchFunc(k *Toolkit, provider dataflows.SearchProvider) func(context.Context, SearchInput) (*SearchOutput, error) {
	return func(ctx context.Context, input SearchInput) (*SearchOutput, error) {
		query := strings.TrimSpace(input.Query)
		if query == "" {
			return nil, fmt.Errorf("query parameter is required")
		}
		results, err := provider.Search(ctx, query, k.searchLimit(input.MaxResults))
		if err != nil {
			return nil, err
		}
		return &SearchOutput{Provider: provider.Name(), Query: query, Results: results}, nil
	}
}
