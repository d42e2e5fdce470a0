package main

import "github.com/theagilepilot/gmat-wiz-sub001/internal/core"

func globalScope() core.ScopeKey {
	return core.ScopeKey{ScopeType: core.ScopeGlobal}
}
