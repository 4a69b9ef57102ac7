// Package model はドメインモデルを定義する。
package model

import "time"

// ServiceRequest はITサービスリクエスト（チケット）を表す。
// ハード削除は行わず、Closedになっても監査・分析用に保持される。
type ServiceRequest struct {
	ID                string
	RequesterName     string
	Email             string
	Department        string
	Category          string
	Description       string // サニタイズ済みテキスト
	Priority          Priority
	ContactPreference string
	AssignedTo        string
	Status            Status
	Attachments       []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ResolvedAt        *time.Time
}

// Status はサービスリクエストのライフサイクル状態を表す。
type Status string

const (
	// StatusOpen は受付済み・未着手の状態。作成時の初期状態。
	StatusOpen Status = "Open"
	// StatusInProgress は担当者が対応中の状態。
	StatusInProgress Status = "In Progress"
	// StatusResolved は解決済みの状態。
	StatusResolved Status = "Resolved"
	// StatusClosed はクローズされた終端状態。Reopen以外の遷移はない。
	StatusClosed Status = "Closed"
)

// ValidStatuses は有効なステータスの一覧を返す。
func ValidStatuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}
}

// IsValidStatus はステータス値が定義済みかどうかを判定する。
func IsValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	default:
		return false
	}
}

// CanTransition はステータス遷移が許可されているかどうかを判定する。
// 許可される遷移:
//
//	Open → In Progress → Resolved → Closed
//	Resolved → Open, Closed → Open（Reopen）
//
// Web画面とJSON APIの両方がこの1箇所を遷移の決定権として共有する。
func CanTransition(from, to Status) bool {
	switch from {
	case StatusOpen:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusResolved
	case StatusResolved:
		return to == StatusClosed || to == StatusOpen
	case StatusClosed:
		return to == StatusOpen
	default:
		return false
	}
}

// Priority はサービスリクエストの優先度を表す。
type Priority string

const (
	// PriorityLow は低優先度。
	PriorityLow Priority = "Low"
	// PriorityMedium は標準優先度。未指定時のデフォルト。
	PriorityMedium Priority = "Medium"
	// PriorityHigh は高優先度。
	PriorityHigh Priority = "High"
	// PriorityCritical は最優先。業務停止レベルの障害を想定。
	PriorityCritical Priority = "Critical"
)

// ValidPriorities は有効な優先度の一覧を返す。
func ValidPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
}

// IsValidPriority は優先度値が定義済みかどうかを判定する。
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Weight は優先度のソート用の数値重みを返す。値が大きいほど優先される。
func (p Priority) Weight() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 0
	}
}

// Categories は申請フォームで選択可能なカテゴリの一覧。
var Categories = []string{
	"Password Reset",
	"Hardware Issue",
	"Software Installation",
	"Network Problem",
	"Printer Issue",
	"Email Problem",
	"Access Request",
	"Security Concern",
	"Other",
}

// Departments は申請フォームで選択可能な部署の一覧。
var Departments = []string{
	"IT", "HR", "Finance", "Marketing", "Operations", "Sales", "Executive",
}

// ContactPreferences は希望連絡手段の一覧。
var ContactPreferences = []string{"email", "phone", "teams"}

// IsValidCategory はカテゴリが選択肢に含まれるかどうかを判定する。
func IsValidCategory(category string) bool {
	return containsString(Categories, category)
}

// IsValidDepartment は部署が選択肢に含まれるかどうかを判定する。
func IsValidDepartment(department string) bool {
	return containsString(Departments, department)
}

// IsValidContactPreference は希望連絡手段が選択肢に含まれるかどうかを判定する。
func IsValidContactPreference(pref string) bool {
	return containsString(ContactPreferences, pref)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
