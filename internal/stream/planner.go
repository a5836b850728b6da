package stream

import "fmt"

// ConnectionGroup is an ordered set of subscriptions sharing one websocket.
type ConnectionGroup struct {
	Subscriptions []*Subscription
}

// planGroups packs subscriptions into connection groups. Explicitly bundled
// sets map one-to-one onto groups in composition order; the flat pool is then
// packed, order preserved, into chunks of at most maxPerConn subscriptions
// (0 = unlimited, one group). Duplicate (channel, params) pairs anywhere in
// the input are rejected. Pure function: no side effects, stable output.
func planGroups(bundles [][]*Subscription, flat []*Subscription, maxPerConn int) ([]ConnectionGroup, error) {
	seen := make(map[string]struct{})
	checkDup := func(sub *Subscription) error {
		key := sub.Key()
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateSubscription, key)
		}
		seen[key] = struct{}{}
		return nil
	}

	groups := make([]ConnectionGroup, 0, len(bundles)+1)

	for _, bundle := range bundles {
		for _, sub := range bundle {
			if err := checkDup(sub); err != nil {
				return nil, err
			}
		}
		subs := make([]*Subscription, len(bundle))
		copy(subs, bundle)
		groups = append(groups, ConnectionGroup{Subscriptions: subs})
	}

	for _, sub := range flat {
		if err := checkDup(sub); err != nil {
			return nil, err
		}
	}

	size := maxPerConn
	if size <= 0 {
		size = len(flat)
	}
	for start := 0; start < len(flat); start += size {
		end := start + size
		if end > len(flat) {
			end = len(flat)
		}
		subs := make([]*Subscription, end-start)
		copy(subs, flat[start:end])
		groups = append(groups, ConnectionGroup{Subscriptions: subs})
	}

	return groups, nil
}
