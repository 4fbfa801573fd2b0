package tools

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/models"
)

type NewsInput struct {
	Query      string `json:"query,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

type NewsOutput struct {
	Query    string               `json:"query"`
	Count    int                  `json:"count"`
	Articles []models.NewsArticle `json:"articles"`
}

func newExternalNewsTool(k *Toolkit, st *models.WorkflowState) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolExternalNews,
			Desc: "Get recent news headlines about the event behind this market from Google News.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query":       {Type: schema.String, Desc: "News query; defaults to the market question"},
				"max_results": {Type: schema.Integer, Desc: "Maximum number of articles"},
			}),
		},
		func(ctx context.Context, input NewsInput) (*NewsOutput, error) {
			query := strings.TrimSpace(input.Query)
			if query == "" {
				query = st.MarketData.Question
			}
			limit := k.searchLimit(input.MaxResults)
			articles, ok := st.CachedNews()
			if !ok {
				var err error
				articles, err = k.News.News(ctx, query, k.searchLimit(0))
				if err != nil {
					return nil, err
				}
				st.StoreNews(articles)
			}
			if len(articles) > limit {
				articles = articles[:limit]
			}
			return &NewsOutput{Query: query, Count: len(articles), Articles: articles}, nil
		},
	)
}
