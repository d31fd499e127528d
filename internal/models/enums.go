package models

import (
	"strings"

	"jukwaa/internal/apperr"
)

// ContentKind identifies what a vote, report or moderation record points at.
type ContentKind string

const (
	KindPost    ContentKind = "post"
	KindComment ContentKind = "comment"
	KindUser    ContentKind = "user"
)

func ParseContentKind(s string) (ContentKind, error) {
	switch k := ContentKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPost, KindComment, KindUser:
		return k, nil
	}
	return "", apperr.Validation("unknown content kind %q", s)
}

// Votable reports whether the ledger accepts votes on this kind.
func (k ContentKind) Votable() bool {
	return k == KindPost || k == KindComment
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionUp, DirectionDown:
		return d, nil
	}
	return "", apperr.Validation("direction must be up or down, got %q", s)
}

type Category string

const (
	CategoryGovernance     Category = "governance"
	CategoryInfrastructure Category = "infrastructure"
	CategoryHealth         Category = "health"
	CategoryEducation      Category = "education"
	CategorySecurity       Category = "security"
	CategoryEnvironment    Category = "environment"
	CategoryEconomy        Category = "economy"
	CategoryGeneral        Category = "general"
)

var categories = []Category{
	CategoryGovernance, CategoryInfrastructure, CategoryHealth, CategoryEducation,
	CategorySecurity, CategoryEnvironment, CategoryEconomy, CategoryGeneral,
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range categories {
		if c == known {
			return c, nil
		}
	}
	return "", apperr.Validation("unknown category %q", s)
}

type Visibility string

const (
	VisibilityPublic       Visibility = "public"
	VisibilityPrivate      Visibility = "private"
	VisibilityConstituency Visibility = "constituency"
)

func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToLower(strings.TrimSpace(s))); v {
	case VisibilityPublic, VisibilityPrivate, VisibilityConstituency:
		return v, nil
	case "":
		return VisibilityPublic, nil
	}
	return "", apperr.Validation("unknown visibility %q", s)
}

// ContentStatus is the moderation state mirrored onto a post or comment.
type ContentStatus string

const (
	ContentStatusNone     ContentStatus = "none"
	ContentStatusPending  ContentStatus = "pending"
	ContentStatusApproved ContentStatus = "approved"
	ContentStatusRejected ContentStatus = "rejected"
)

type ReportReason string

const (
	ReasonSpam           ReportReason = "spam"
	ReasonHarassment     ReportReason = "harassment"
	ReasonHateSpeech     ReportReason = "hate_speech"
	ReasonMisinformation ReportReason = "misinformation"
	ReasonViolence       ReportReason = "violence"
	ReasonOther          ReportReason = "other"
)

func ParseReportReason(s string) (ReportReason, error) {
	switch r := ReportReason(strings.ToLower(strings.TrimSpace(s))); r {
	case ReasonSpam, ReasonHarassment, ReasonHateSpeech, ReasonMisinformation, ReasonViolence, ReasonOther:
		return r, nil
	}
	return "", apperr.Validation("unknown report reason %q", s)
}

// Sensitive reasons escalate a record to high severity on their own.
func (r ReportReason) Sensitive() bool {
	return r == ReasonHarassment || r == ReasonHateSpeech || r == ReasonViolence
}

type ModerationStatus string

const (
	StatusPending    ModerationStatus = "pending"
	StatusApproved   ModerationStatus = "approved"
	StatusRejected   ModerationStatus = "rejected"
	StatusBannedUser ModerationStatus = "banned_user"
)

func ParseModerationStatus(s string) (ModerationStatus, error) {
	switch st := ModerationStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected, StatusBannedUser:
		return st, nil
	}
	return "", apperr.Validation("unknown moderation status %q", s)
}

func (s ModerationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusBannedUser
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func ParseSeverity(s string) (Severity, error) {
	switch sv := Severity(strings.ToLower(strings.TrimSpace(s))); sv {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return sv, nil
	}
	return "", apperr.Validation("unknown severity %q", s)
}

// Rank orders severities for queue sorting, higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

type ModerationAction string

const (
	ActionApprove ModerationAction = "approve"
	ActionReject  ModerationAction = "reject"
	ActionBan     ModerationAction = "ban"
)

// ParseModerationAction accepts "remove" as a synonym for reject.
func ParseModerationAction(s string) (ModerationAction, error) {
	switch a := strings.ToLower(strings.TrimSpace(s)); a {
	case "approve":
		return ActionApprove, nil
	case "reject", "remove":
		return ActionReject, nil
	case "ban":
		return ActionBan, nil
	}
	return "", apperr.Validation("action must be approve, reject or ban, got %q", s)
}

// Outcome is the status a pending record moves to under this action.
func (a ModerationAction) Outcome() ModerationStatus {
	switch a {
	case ActionApprove:
		return StatusApproved
	case ActionReject:
		return StatusRejected
	default:
		return StatusBannedUser
	}
}

type Role string

const (
	RoleCitizen        Role = "citizen"
	RoleOrganization   Role = "organization"
	RoleRepresentative Role = "representative"
	RoleModerator      Role = "moderator"
	RoleAdmin          Role = "admin"
)

func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin
}

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCitizen, RoleOrganization, RoleRepresentative, RoleModerator, RoleAdmin:
		return r, nil
	}
	return "", apperr.Validation("unknown role %q", s)
}
