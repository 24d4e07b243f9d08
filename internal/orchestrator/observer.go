package orchestrator

import "github.com/randomizedcoder/go-browser-perf/internal/engine"

// chain calls every observer in order.
func chain(observers ...engine.Observer) engine.Observer {
	return engine.Observer{
		OnIterationStart: func(index, total int) {
			for _, o := range observers {
				if o.OnIterationStart != nil {
					o.OnIterationStart(index, total)
				}
			}
		},
		OnStateChange: func(index int, from, to engine.State) {
			for _, o := range observers {
				if o.OnStateChange != nil {
					o.OnStateChange(index, from, to)
				}
			}
		},
		OnIterationDone: func(res *engine.IterationResult) {
			for _, o := range observers {
				if o.OnIterationDone != nil {
					o.OnIterationDone(res)
				}
			}
		},
		OnRunDone: func(runs []*engine.RunResult) {
			for _, o := range observers {
				if o.OnRunDone != nil {
					o.OnRunDone(runs)
				}
			}
		},
	}
}

// sequence adapts an observer to one of several back to back runs. Indices
// are shifted by offset and reported against total, and only the last run
// reports that it is done.
func sequence(o engine.Observer, offset, total int, last bool) engine.Observer {
	s := engine.Observer{OnIterationDone: o.OnIterationDone}
	if o.OnIterationStart != nil {
		s.OnIterationStart = func(index, _ int) {
			o.OnIterationStart(offset+index, total)
		}
	}
	if o.OnStateChange != nil {
		s.OnStateChange = func(index int, from, to engine.State) {
			o.OnStateChange(offset+index, from, to)
		}
	}
	if last {
		s.OnRunDone = o.OnRunDone
	}
	return s
}
