// Package stages holds the concrete pipeline steps named in spec.md §4.8
// (component H). Each stage reads the current TestContext and talks to the
// target through stage.Deps. Grounded on
// internal/service/saga/orchestrator.go's Start method: a linear pipeline
// of handleX phases, each logging with logger.WithFields(log.Fields{...})
// the way the teacher's handlers do.
package stages

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
	"github.com/vladislavdragonenkov/bombardier/internal/stage"
	"github.com/vladislavdragonenkov/bombardier/internal/userpool"
)

// ChooseUserAccount selects a random user from the flow's user pool and
// assigns it on the TestContext (spec.md §4.8 step 1). Non-retryable: an
// empty pool is a configuration problem, not a transient condition.
type ChooseUserAccount struct {
	logger *log.Entry
}

// NewChooseUserAccount builds the stage.
func NewChooseUserAccount() *ChooseUserAccount {
	return &ChooseUserAccount{logger: log.WithField("stage", "ChooseUserAccount")}
}

func (s *ChooseUserAccount) Name() string { return "ChooseUserAccount" }

func (s *ChooseUserAccount) Run(_ context.Context, tc *domain.TestContext, deps stage.Deps) stage.Continuation {
	userID, err := deps.Pool.GetRandomUserID()
	if err != nil {
		s.logger.WithError(err).WithField("service", tc.ServiceName).Warn("no user available")
		if err == userpool.ErrNoUsersForService {
			return stage.FAIL
		}
		return stage.ERROR
	}

	if err := tc.SetUser(userID); err != nil {
		s.logger.WithError(err).Warn("pool returned an unusable user id")
		return stage.FAIL
	}
	return stage.CONTINUE
}
