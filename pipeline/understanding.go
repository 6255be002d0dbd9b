package pipeline

// 查询意图（封闭枚举，分类边界校验后不再出现非法值）
type Intent string

const (
	IntentAnalytical     Intent = "analytical"     // 比较、分析、评估
	IntentFactual        Intent = "factual"        // 寻求具体资讯或事实
	IntentConversational Intent = "conversational" // 问候、闲聊
	IntentTransactional  Intent = "transactional"  // 预订、购买、安排
)

// ParseIntent 校验意图值是否属于封闭枚举。
func ParseIntent(s string) (Intent, bool) {
	switch Intent(s) {
	case IntentAnalytical, IntentFactual, IntentConversational, IntentTransactional:
		return Intent(s), true
	}
	return "", false
}

// 查询领域，驱动后端选择
type Domain string

const (
	DomainWeather        Domain = "weather"
	DomainTransportation Domain = "transportation"
	DomainFinance        Domain = "finance"
	DomainGeneral        Domain = "general"
)

// ParseDomain 校验领域值是否属于封闭枚举。
func ParseDomain(s string) (Domain, bool) {
	switch Domain(s) {
	case DomainWeather, DomainTransportation, DomainFinance, DomainGeneral:
		return Domain(s), true
	}
	return "", false
}

// IsSpecialized 判断领域是否有专用 API 处理器。
func (d Domain) IsSpecialized() bool {
	return d == DomainWeather || d == DomainTransportation || d == DomainFinance
}

// Entities 是分类阶段抽取的实体，固定字段、默认空列表。
// 固定结构避免了下游到处判断 "key 是否存在"。
type Entities struct {
	Locations     []string  `json:"locations"`
	Organizations []string  `json:"organizations"`
	StockSymbols  []string  `json:"stock_symbols"`
	Dates         []string  `json:"dates"`
	Products      []string  `json:"products"`
	General       []string  `json:"general"`
	Currencies    []string  `json:"currencies"`
	Amounts       []float64 `json:"amount"`
}

// EmptyEntities 返回各字段均为空列表（非 nil）的实体集。
func EmptyEntities() Entities {
	return Entities{
		Locations:     []string{},
		Organizations: []string{},
		StockSymbols:  []string{},
		Dates:         []string{},
		Products:      []string{},
		General:       []string{},
		Currencies:    []string{},
		Amounts:       []float64{},
	}
}

// normalize 补齐缺失字段为 nil 的空列表，保证固定形状不变式。
func (e *Entities) normalize() {
	if e.Locations == nil {
		e.Locations = []string{}
	}
	if e.Organizations == nil {
		e.Organizations = []string{}
	}
	if e.StockSymbols == nil {
		e.StockSymbols = []string{}
	}
	if e.Dates == nil {
		e.Dates = []string{}
	}
	if e.Products == nil {
		e.Products = []string{}
	}
	if e.General == nil {
		e.General = []string{}
	}
	if e.Currencies == nil {
		e.Currencies = []string{}
	}
	if e.Amounts == nil {
		e.Amounts = []float64{}
	}
}

// UserContext 是分类时附带的环境上下文（时间 + IP 推断位置）。
type UserContext struct {
	CurrentTime string  `json:"current_time"`
	Location    string  `json:"location"`
	Country     string  `json:"country"`
	Timezone    string  `json:"timezone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Understanding 是分类阶段的结构化产物，所有后续阶段消费它。
// 构造完成后不可变；Intent/Domain 保证是合法枚举值。
type Understanding struct {
	Query    string      `json:"query"`
	Intent   Intent      `json:"intent"`
	Domain   Domain      `json:"domain"`
	NeedsWeb bool        `json:"needs_web"`
	Entities Entities    `json:"entities"`
	Context  UserContext `json:"user_context"`
}

// DefaultUnderstanding 是分类失败时的保守默认：
// factual/general，走 web 检索，空实体。
func DefaultUnderstanding(query string, uc UserContext) Understanding {
	return Understanding{
		Query:    query,
		Intent:   IntentFactual,
		Domain:   DomainGeneral,
		NeedsWeb: true,
		Entities: EmptyEntities(),
		Context:  uc,
	}
}
