package controllers

import (
	"sync"

	"github.com/Resonant-Projects/parkpick/internal/pkg/billing"
	"github.com/Resonant-Projects/parkpick/internal/pkg/database"
	"github.com/Resonant-Projects/parkpick/internal/pkg/quota"
	"github.com/Resonant-Projects/parkpick/internal/pkg/referral"
	"github.com/Resonant-Projects/parkpick/internal/pkg/reward"
)

var (
	servicesOnce sync.Once
	referralSvc  *referral.Service
	recoverySvc  *reward.Recovery
	billingSvc   *billing.Service
	quotaSvc     *quota.Service
)

// initServices wires the service graph once. The referral service and the
// recovery loop reference each other, so the recorder is attached late.
func initServices() {
	servicesOnce.Do(func() {
		db := database.GetDB()

		rewardRepo := reward.NewRepository(db)
		grantor := reward.NewGrantor(rewardRepo)

		refRepo := referral.NewRepository(db)
		fraud := referral.NewFraudChecker(refRepo, referral.NewCounterStore(), referral.DefaultFraudConfig())
		referralSvc = referral.NewService(refRepo, fraud, grantor, nil)

		recoverySvc = reward.NewRecovery(rewardRepo, grantor, referralSvc)
		referralSvc.SetFailureRecorder(recoverySvc)

		billingSvc = billing.NewService(billing.NewRepository(db))
		quotaSvc = quota.NewService(quota.NewRepository(db))
	})
}

// ReferralService returns the shared referral ledger service.
func ReferralService() *referral.Service {
	initServices()
	return referralSvc
}

// RecoveryService returns the shared failed-reward recovery loop.
func RecoveryService() *reward.Recovery {
	initServices()
	return recoverySvc
}

// BillingService returns the shared billing reconciliation service.
func BillingService() *billing.Service {
	initServices()
	return billingSvc
}

// QuotaService returns the shared entitlement gate.
func QuotaService() *quota.Service {
	initServices()
	return quotaSvc
}
