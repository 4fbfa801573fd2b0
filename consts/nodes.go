package consts

const (
	// 入口节点
	InitRun     = "init_run"
	FetchMarket = "fetch_market"

	// 研究阶段
	ResearchGuard   = "research_guard"
	ResearchAgent   = "research_agent"
	ResearchTools   = "research_tools"
	ResearchReflect = "reflect_on_research"

	// 分析阶段
	AnalysisGuard   = "analysis_guard"
	AnalysisAgent   = "analysis_agent"
	AnalysisTools   = "analysis_tools"
	AnalysisReflect = "reflect_on_analysis"

	// 交易阶段
	TradeGuard   = "trade_guard"
	TradeAgent   = "trade_agent"
	TradeTools   = "trade_tools"
	TradeReflect = "reflect_on_trade"

	Finish = "finish"
)

const (
	// Capability tools
	ToolSearchTavily     = "search_tavily"
	ToolSearchExa        = "search_exa"
	ToolMarketDetails    = "get_market_details"
	ToolMultiLevelBook   = "get_multi_level_orderbook"
	ToolHistoricalTrends = "get_historical_trends"
	ToolMarketTrades     = "get_market_trades"
	ToolExternalNews     = "get_external_news"

	// Terminal tools
	ToolSubmitResearch = "submit_research"
	ToolSubmitAnalysis = "submit_analysis"
	ToolSubmitTrade    = "submit_trade"

	// Judge output
	ToolSubmitVerdict = "submit_verdict"
)
