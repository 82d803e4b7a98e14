package assistant

import (
	"fmt"
	"strings"
	"sync"

	"github.com/suPer8Hu/haru-bank/internal/bank"
)

const skiBundleEvent = `[SYSTEM EVENT] User is traveling to Japan in Winter. "Ski_Bundle_Active" event triggered.`

var winterMonths = map[string]bool{"december": true, "january": true, "february": true}

func dtiEvent(dti float64) string {
	return fmt.Sprintf(`[SYSTEM EVENT] User DTI is %.1f%%. Trigger "DTI_High" warning.`, dti*100)
}

type rule int

const (
	ruleDTI rule = iota
	ruleSki
)

type ruleState int

const (
	ruleIdle ruleState = iota
	rulePending
	ruleFired
)

// advisor holds the proactive rules. Each rule fires at most once per
// session, only while a realtime session is open, and only once its event
// has actually been sent.
type advisor struct {
	mu    sync.Mutex
	rules [2]ruleState
}

type advice struct {
	rule    rule
	actions []bank.Action
	text    string
}

// check returns what should be said for st. Returned rules are pending until
// settle reports whether their event was delivered.
func (a *advisor) check(st bank.State, connected bool) []advice {
	if !connected {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []advice
	if a.rules[ruleDTI] == ruleIdle {
		if dti, ok := st.DTI(); ok && dti > float64(st.Debug.DTIThreshold)/100 {
			a.rules[ruleDTI] = rulePending
			out = append(out, advice{rule: ruleDTI, text: dtiEvent(dti)})
		}
	}
	if a.rules[ruleSki] == ruleIdle && skiTrip(st) {
		a.rules[ruleSki] = rulePending
		out = append(out, advice{
			rule: ruleSki,
			actions: []bank.Action{
				bank.SetInsuranceAddon{Addon: bank.AddonWinterSports, Active: true},
				bank.SetInsuranceAddon{Addon: bank.AddonCarRental, Active: true},
			},
			text: skiBundleEvent,
		})
	}
	return out
}

// settle marks r fired when its event went out, or makes it eligible again.
func (a *advisor) settle(r rule, delivered bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if delivered {
		a.rules[r] = ruleFired
	} else {
		a.rules[r] = ruleIdle
	}
}

func skiTrip(st bank.State) bool {
	return winterMonths[strings.ToLower(strings.TrimSpace(st.TravelMonth))] &&
		strings.Contains(strings.ToLower(st.Destination), "japan")
}
