package jeedom

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// outcome is a result that can be settled exactly once
type outcome struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newOutcome() *outcome {
	return &outcome{done: make(chan struct{})}
}

// settle runs fn and keeps its error if nothing settled first. It reports whether fn ran.
func (o *outcome) settle(fn func() error) bool {
	ran := false
	o.once.Do(func() {
		o.err = fn()
		ran = true
		close(o.done)
	})
	return ran
}

func (o *outcome) wait() error {
	<-o.done
	return o.err
}

// setPowerState sends the command for `on` and races it against the record's
// command timeout. Whichever finishes first decides the result:
//   - the command succeeds: the cache takes the new state
//   - the command fails: the error is returned and the cache is left alone
//   - the timeout fires: success is assumed and the cache takes the new state;
//     whatever the command does afterwards is only logged
//
// Exactly one request is sent per call, even when the command for this direction
// is empty.
func (reg *Registry) setPowerState(rec *Record, on bool) error {
	cmd := rec.command(on)
	log := reg.logger(rec).WithFields(logrus.Fields{"target": onOff(on), "command": cmd})

	rec.cancelRevert()
	res := newOutcome()

	timer := time.AfterFunc(rec.CommandTimeout, func() {
		res.settle(func() error {
			log.Infof("turning %s %s took too long [%s], assuming success", onOff(on), rec.Name, rec.CommandTimeout)
			reg.applySet(rec, on)
			return nil
		})
	})

	ctx := reg.lifetime()
	go func() {
		_, err := reg.client.Send(ctx, cmd)

		ran := res.settle(func() error {
			timer.Stop()
			if err != nil {
				log.WithError(err).Warnf("failed to turn %s %s", onOff(on), rec.Name)
				return err
			}
			if cmd != "" {
				log.Infof("%s is turned %s", rec.Name, onOff(on))
			}
			reg.applySet(rec, on)
			return nil
		})
		if ran {
			return
		}
		if err != nil {
			log.WithError(err).Warn("command failed after success was already assumed")
			return
		}
		log.Debug("command completed after success was already assumed")
	}()

	return res.wait()
}

// applySet records a successful set and arms the pulse revert when the switch cannot hold `on`
func (reg *Registry) applySet(rec *Record, on bool) {
	rec.setState(on)
	if !rec.isPulse(on) {
		return
	}
	rec.scheduleRevert(reg.PulseDelay, func() {
		reg.revertPulse(rec, !on)
	})
}

func (reg *Registry) revertPulse(rec *Record, rest bool) {
	if !reg.current(rec) {
		return
	}
	rec.setState(rest)
	reg.logger(rec).Infof("%s is turned to %s, the rest state because only one command exists", rec.Name, onOff(rest))
	reg.notify(rec.Name, rest)
}
