// Package entitlement computes the current entitlement map for a
// subscriber from their subscription graph.
package entitlement

import (
	"sort"
	"time"

	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/models"
)

// Entitlement is one resolved capability.
type Entitlement struct {
	ID          string
	IsActive    bool
	ExpiresDate *time.Time
}

// Result is the output of Calculate.
type Result struct {
	Subscriptions       []models.Subscription
	Entitlements        map[string]Entitlement
	PrimarySubscription *models.Subscription
}

// Calculate loads all subscriptions for the subscriber, loads the app's
// product→entitlement mappings, and unions the entitlements of every
// currently-granting subscription. For a given entitlement id the
// chosen expiry is the maximum across contributing subscriptions, and
// is_active=true supersedes false.
func Calculate(appID string, subscriberID uint) (Result, error) {
	subs, err := database.GetSubscriptionsForSubscriber(appID, subscriberID)
	if err != nil {
		return Result{}, err
	}

	mappings, err := database.GetProductEntitlementMappings(appID)
	if err != nil {
		return Result{}, err
	}
	byProduct := make(map[string][]string)
	for _, m := range mappings {
		byProduct[m.ProductID] = append(byProduct[m.ProductID], m.EntitlementID)
	}

	now := time.Now()
	resolved := make(map[string]Entitlement)
	var granting []models.Subscription

	for _, sub := range subs {
		if !sub.IsGranting(now) {
			continue
		}
		granting = append(granting, sub)

		ids := byProduct[sub.ProductID]
		if len(ids) == 0 {
			// No mappings configured for this product: default 1:1.
			ids = []string{sub.ProductID}
		}

		for _, id := range ids {
			cur, exists := resolved[id]
			if !exists {
				resolved[id] = Entitlement{ID: id, IsActive: true, ExpiresDate: sub.ExpiresAt}
				continue
			}
			// is_active=true supersedes false (both are true here since
			// only granting subscriptions reach this point); expiry is the
			// max across contributors, treating nil (lifetime) as the max.
			merged := cur
			merged.IsActive = true
			if cur.ExpiresDate == nil || sub.ExpiresAt == nil {
				merged.ExpiresDate = nil
			} else if sub.ExpiresAt.After(*cur.ExpiresDate) {
				merged.ExpiresDate = sub.ExpiresAt
			}
			resolved[id] = merged
		}
	}

	sort.Slice(granting, func(i, j int) bool {
		a, b := granting[i], granting[j]
		if a.PriceAmount != b.PriceAmount {
			return a.PriceAmount > b.PriceAmount
		}
		aExp, bExp := expiryOrZero(a.ExpiresAt), expiryOrZero(b.ExpiresAt)
		if !aExp.Equal(bExp) {
			return aExp.After(bExp)
		}
		return a.Platform.Priority() > b.Platform.Priority()
	})

	result := Result{Subscriptions: subs, Entitlements: resolved}
	if len(granting) > 0 {
		primary := granting[0]
		result.PrimarySubscription = &primary
	}
	return result, nil
}

func expiryOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Unix(1<<62, 0) // treat lifetime (nil) as effectively maximal for sort purposes
	}
	return *t
}
