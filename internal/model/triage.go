package model

// TriageLevel 是分诊服务给出的紧急程度分类。
type TriageLevel string

const (
	TriageEmergency TriageLevel = "EMERGENCY"
	TriageUrgent    TriageLevel = "URGENT"
	TriageSelfCare  TriageLevel = "SELF_CARE"
	TriageFollowUp  TriageLevel = "FOLLOW_UP"
)

// Valid 判断是否为已知的分诊级别。
func (l TriageLevel) Valid() bool {
	switch l {
	case TriageEmergency, TriageUrgent, TriageSelfCare, TriageFollowUp:
		return true
	}
	return false
}

// TriageResult 由分诊服务产生，客户端只读。
type TriageResult struct {
	TriageLevel          TriageLevel `json:"triage_level"`
	Summary              string      `json:"summary"`
	RecommendedNextSteps []string    `json:"recommended_next_steps"`
	Escalate             bool        `json:"escalate"`
	RedFlagDetected      bool        `json:"red_flag_detected"`
	NextQuestion         *string     `json:"next_question,omitempty"`
	RedFlagSymptom       *string     `json:"red_flag_symptom,omitempty"`
}

// Clone 返回深拷贝，保证持有方之间互不影响。
func (r *TriageResult) Clone() *TriageResult {
	if r == nil {
		return nil
	}
	out := *r
	out.RecommendedNextSteps = append([]string(nil), r.RecommendedNextSteps...)
	if out.RecommendedNextSteps == nil {
		out.RecommendedNextSteps = []string{}
	}
	if r.NextQuestion != nil {
		q := *r.NextQuestion
		out.NextQuestion = &q
	}
	if r.RedFlagSymptom != nil {
		s := *r.RedFlagSymptom
		out.RedFlagSymptom = &s
	}
	return &out
}

// Provider 是附近的医疗机构。
type Provider struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Address   string   `json:"address"`
	Phone     string   `json:"phone"`
	Distance  *float64 `json:"distance,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Location 是机构查询的位置与范围，Radius 单位为公里。
type Location struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Radius       int     `json:"radius"`
	ProviderType string  `json:"provider_type,omitempty"`
}

// Valid 校验经纬度范围。
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}
