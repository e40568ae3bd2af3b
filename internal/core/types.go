package core

import "evocore/pkg/domain"

type (
	EntityType         = domain.EntityType
	RoundStatus        = domain.RoundStatus
	Severity           = domain.Severity
	Base               = domain.Base
	Variant            = domain.Variant
	Round              = domain.Round
	Label              = domain.Label
	Library            = domain.Library
	Generator          = domain.Generator
	Selector           = domain.Selector
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityVariant = domain.EntityVariant
	EntityRound   = domain.EntityRound
	EntityLabel   = domain.EntityLabel
)

const (
	StatusUnknown   = domain.StatusUnknown
	StatusNotReady  = domain.StatusNotReady
	StatusReady     = domain.StatusReady
	StatusGenerated = domain.StatusGenerated
	StatusSelected  = domain.StatusSelected
	StatusLabeled   = domain.StatusLabeled
	StatusComplete  = domain.StatusComplete
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
