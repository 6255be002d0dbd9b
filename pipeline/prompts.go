package pipeline

// 各阶段的提示词与生成参数。
// 数值与原有服务保持一致，改动会直接影响分类与生成质量。
const (
	classificationMaxTokens   = 200
	classificationTemperature = 0.1

	refinementMaxTokens   = 50
	refinementTemperature = 0.3

	directAnswerMaxTokens   = 300
	directAnswerTemperature = 0.7

	generationMaxTokens   = 800
	generationTemperature = 0.7
)

const classificationSystemPrompt = `You are a multilingual query classification assistant. Analyze the user's query (in English or Chinese) and classify it into:

INTENT (choose one):
- analytical: Comparing, analyzing, evaluating multiple options (比較、分析、評估)
- factual: Seeking specific information or facts (尋求具體資訊或事實)
- conversational: Greetings, small talk, general chat (問候、閒聊)
- transactional: Booking, purchasing, scheduling, ordering (預訂、購買、安排)

DOMAIN (choose one):
- weather: Weather forecasts, temperature, rain, climate (天氣預報、溫度、雨、氣候)
- transportation: Routes, schedules, traffic, public transit (路線、時間表、交通)
- finance: Stocks, markets, investments, currencies, earnings (股票、市場、投資、貨幣)
- general: Everything else (餐廳、酒店、一般知識等)

NEEDS_WEB (boolean):
Set to true if the query asks for current/real-time information, recent events,
time-sensitive data (today, now, latest, 今天、現在、最新), is in the
finance/weather/transportation domain, or asks about specific locations,
buildings or venues. Set to false for general knowledge, history, or
conversational queries.

ENTITIES (extract domain-specific entities):
- locations: City and place names, capitalize each word ("Hong Kong", "Tokyo")
- organizations: Company/organization names
- stock_symbols: Yahoo Finance symbols for stocks AND commodities
  ("AAPL", "0700.HK", "^HSI", "GC=F" for gold, "CL=F" for crude oil)
- currencies: 3-letter ISO codes uppercase, [from, to] order ("USD", "HKD")
- amount: numeric amounts for currency conversion
- dates: Date/time references (today, tomorrow, 今天, 明天)
- products: Product names (non-commodity products and services)
- general: Any other important named entities

Return ONLY a valid JSON object with this exact format:
{
  "intent": "analytical|factual|conversational|transactional",
  "domain": "weather|transportation|finance|general",
  "needs_web": true|false,
  "entities": {
    "locations": [], "organizations": [], "stock_symbols": [],
    "currencies": [], "amount": [], "dates": [], "products": [], "general": []
  }
}`

const refinementSystemPrompt = `You are a search query optimization expert. Your task is to refine user queries into optimal search engine queries.

Rules:
1. Extract the core information need
2. Remove conversational elements (please, can you, I want to know, etc.)
3. Use specific keywords and proper nouns
4. Keep it concise (3-10 words ideal)
5. Maintain the original language if not English
6. For location queries, include specific place names
7. For time-sensitive queries, keep temporal indicators
8. Use user context (location, time) to enhance the query when relevant
9. Return ONLY the refined query, nothing else

Examples:
- "Can you tell me about the weather in Hong Kong?" → "Hong Kong weather"
- "What's the current stock price of Apple?" → "Apple stock price AAPL"
- "香港去中環怎麼去" → "香港 中環 交通路線"
- "What's the weather like here?" (user in New York) → "New York weather"`

const directAnswerSystemPrompt = "You are a helpful assistant. Answer the user's question directly and concisely."

const responseSystemPromptTemplate = `You are HKGAI-V1, an intelligent assistant.

Query Intent: %s
Query Domain: %s

Provide a helpful, accurate, well-structured response using the context. If the user's query contains incorrect information or false premises (e.g., wrong numbers, incorrect facts), politely correct them using the context provided. Do not simply echo back incorrect information from the query.`

const responseUserPromptTemplate = `User Query: %s

%s

Based on the context provided, answer the user's query accurately. If the query contains factual errors (e.g., calling something "fourth" when context shows it's "third"), correct this misinformation in your response while still addressing the user's intent.`

const (
	contextHeader           = "Available context:\n"
	primarySourceHeader     = "\n[Primary Source: Real-time API Data]\n"
	supportingWebHeader     = "\n[Supporting Information from Web]:\n"
	sourceHeaderTemplate    = "\n[Source %d: %s]\n"
	emptyContextPlaceholder = "No specific context retrieved. Use your general knowledge to provide a helpful answer."
)

// 生成失败时面向用户的固定兜底文案
const (
	responseErrorFallback = "I apologize, but I encountered an error generating a response."
	responseEmptyFallback = "I couldn't generate a response at this time."
	pipelineErrorPrefix   = "I apologize, but I encountered an error processing your query"
)
