package pipeline

// 检索后端源
type Source string

const (
	SourceLocalKB   Source = "local_kb"
	SourceWebSearch Source = "web_search"
	SourceDomainAPI Source = "domain_api"
)

// SourceSelection 决定查询哪些后端、以什么优先顺序。
// 不变式：Priority 恒为 Sources 的一个排列。
type SourceSelection struct {
	Sources       []Source `json:"sources"`
	DomainHandler Domain   `json:"domain_handler,omitempty"` // 专用处理器；非专用领域为空
	Priority      []Source `json:"priority"`
}

// Has 判断某个后端是否被选中。
func (s SourceSelection) Has(src Source) bool {
	for _, v := range s.Sources {
		if v == src {
			return true
		}
	}
	return false
}

// SelectSources 是纯函数：Understanding → SourceSelection，无 I/O。
//
// 规则按序应用：
//  1. 专用领域（finance/weather/transportation）→ 加入 domain_api，优先级最前；
//  2. needs_web → 加入 web_search；general 领域时插到优先级 0
//     （通用时效查询信 web 胜过一切），否则追加（补充领域答案）；
//  3. 恒加入 local_kb；会话意图或（general 且不需要 web）时插到优先级 0
//     （静态/会话查询本地知识优先），否则追加；
//  4. 兜底补齐：保证 priority 恒为 sources 的完整排列。
func SelectSources(u Understanding) SourceSelection {
	sources := make([]Source, 0, 3)
	priority := make([]Source, 0, 3)
	var handler Domain

	if u.Domain.IsSpecialized() {
		handler = u.Domain
		sources = append(sources, SourceDomainAPI)
		priority = append(priority, SourceDomainAPI)
	}

	if u.NeedsWeb {
		sources = append(sources, SourceWebSearch)
		if u.Domain == DomainGeneral {
			priority = append([]Source{SourceWebSearch}, priority...)
		} else {
			priority = append(priority, SourceWebSearch)
		}
	}

	sources = append(sources, SourceLocalKB)
	if u.Intent == IntentConversational || (u.Domain == DomainGeneral && !u.NeedsWeb) {
		priority = append([]Source{SourceLocalKB}, priority...)
	} else {
		priority = append(priority, SourceLocalKB)
	}

	for _, src := range sources {
		found := false
		for _, p := range priority {
			if p == src {
				found = true
				break
			}
		}
		if !found {
			priority = append(priority, src)
		}
	}

	return SourceSelection{
		Sources:       sources,
		DomainHandler: handler,
		Priority:      priority,
	}
}
