package domain

// DashboardStats — агрегат для read-only проекций (дашборды не держат
// собственных копий заявок, а перечитывают один такой срез)
type DashboardStats struct {
	TotalRequests int64                  `json:"total_requests"`
	ByState       map[RequestState]int64 `json:"by_state"`
	ByPriority    map[Priority]int64     `json:"by_priority"`

	// Непрочитанные уведомления по получателям (из кэша ленты)
	UnreadNotifications map[string]int64 `json:"unread_notifications"`
}
