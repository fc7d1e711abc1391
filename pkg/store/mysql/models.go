package mysql

import "procgrid/pkg/store/mysql/model"

// Re-export types from the model package so repository callers can stay on
// the mysql package.

type (
	Process      = model.Process
	Server       = model.Server
	ProcessEvent = model.ProcessEvent
)
