package modeltypes

import (
	"context"
	"path"

	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/repository"
)

// persisted layout below Options.Location
const (
	PrimaryTypeManager = "modelTypeManager"

	propRepositories      = "repositories"
	propInstalledArchives = "installedArchives"
	propPendingClasses    = "pendingClasses"
	propContent           = "content"
	propClassName         = "className"
	propCategory          = "category"

	nodeJars             = "jars"
	nodeModelTypes       = "modelTypes"
	primaryTypeJar       = "jar"
	primaryTypeModelType = "modelType"
)

type persistedJar struct {
	name string
	data []byte
}

type persistedState struct {
	repositories []string
	installed    []string
	pending      []string
	jars         []persistedJar
	bindings     []candidate
}

// loadState seeds the persisted location on first use and rebuilds the class
// loading domain and the bound model types from it
func (r *Registry) loadState(ctx context.Context) error {
	op := "load registry state"
	loc := r.options.Location

	var exists bool
	err := r.repo.View(ctx, func(s *repository.Session) error {
		exists = s.NodeExists(loc)
		return nil
	})
	if err != nil {
		return err
	}

	if !exists {
		err := r.repo.Update(ctx, func(s *repository.Session) error {
			if s.NodeExists(loc) {
				return nil
			}

			parent, err := s.CreatePath(path.Dir(loc), PrimaryTypeFolder)
			if err != nil {
				return err
			}

			n, err := parent.AddNode(path.Base(loc), PrimaryTypeManager)
			if err != nil {
				return err
			}

			n.SetStrings(propRepositories, r.options.Repositories)
			n.SetStrings(propInstalledArchives, []string{})
			n.SetStrings(propPendingClasses, []string{})

			if _, err := n.AddNode(nodeJars, PrimaryTypeFolder); err != nil {
				return err
			}

			_, err = n.AddNode(nodeModelTypes, PrimaryTypeFolder)
			return err
		})
		if err != nil {
			return errors.Wrap(op, err)
		}

		r.log.Info("seeded registry state", "location", loc, "repositories", r.options.Repositories)
	}

	ps := persistedState{}
	err = r.repo.View(ctx, func(s *repository.Session) error {
		n, err := s.Node(loc)
		if err != nil {
			return err
		}

		ps.repositories = n.Strings(propRepositories)
		ps.installed = n.Strings(propInstalledArchives)
		ps.pending = n.Strings(propPendingClasses)

		if jars, ok := n.Child(nodeJars); ok {
			for _, j := range jars.Children {
				ps.jars = append(ps.jars, persistedJar{name: j.Name, data: j.Binary(propContent)})
			}
		}

		if mts, ok := n.Child(nodeModelTypes); ok {
			for _, m := range mts.Children {
				ps.bindings = append(ps.bindings, candidate{Category: m.String(propCategory), Class: m.String(propClassName)})
			}
		}

		return nil
	})
	if err != nil {
		return errors.Wrap(op, err)
	}

	return r.restore(ps)
}

func (r *Registry) restore(ps persistedState) error {
	for _, j := range ps.jars {
		p, err := r.extractor.Restore(j.name, j.data)
		if err != nil {
			return err
		}

		if err := r.loader.AddUnit(p); err != nil {
			return err
		}
	}

	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	r.repositories = ps.repositories

	for _, a := range ps.installed {
		r.installed[a] = true
	}

	for _, p := range ps.pending {
		r.pending = append(r.pending, parseCandidate(p))
	}

	for _, b := range ps.bindings {
		if r.bound[b.Class] {
			continue
		}

		res := r.bind(b)
		if res.State != StateBound {
			r.log.Warn("unable to restore model type", "class", b.Class, "state", res.State, "reason", res.Reason)
			continue
		}

		r.addModelType(res.ModelType)
	}

	r.log.Debug(
		"restored registry state",
		"repositories", len(r.repositories),
		"units", len(ps.jars),
		"model_types", len(r.modelTypes),
		"pending", len(r.pending),
	)

	return nil
}

// commit applies mutate to the persisted location in its own session and
// runs apply once the session has been saved
func (r *Registry) commit(ctx context.Context, op string, mutate func(n *repository.Node) error, apply func()) error {
	err := r.repo.Update(ctx, func(s *repository.Session) error {
		n, err := s.Node(r.options.Location)
		if err != nil {
			return err
		}

		return mutate(n)
	})
	if err != nil {
		return errors.Wrap(op, err)
	}

	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	apply()

	r.log.Debug("committed registry state", "op", op)

	return nil
}

// saveUnits persists the units that are not stored yet
func (r *Registry) saveUnits(ctx context.Context, units []Unit) error {
	return r.commit(ctx, "install",
		func(n *repository.Node) error {
			jars, ok := n.Child(nodeJars)
			if !ok {
				var err error
				if jars, err = n.AddNode(nodeJars, PrimaryTypeFolder); err != nil {
					return err
				}
			}

			for _, u := range units {
				if _, ok := jars.Child(u.Name); ok {
					continue
				}

				j, err := jars.AddNode(u.Name, primaryTypeJar)
				if err != nil {
					return err
				}
				j.SetBinary(propContent, u.Data)
			}

			return nil
		},
		func() {},
	)
}

// saveBinding persists a bound model type together with the candidates that
// remain pending
func (r *Registry) saveBinding(ctx context.Context, mt *ModelType, pending []candidate) error {
	return r.commit(ctx, "install",
		func(n *repository.Node) error {
			mts, ok := n.Child(nodeModelTypes)
			if !ok {
				var err error
				if mts, err = n.AddNode(nodeModelTypes, PrimaryTypeFolder); err != nil {
					return err
				}
			}

			m, err := mts.AddNode(mt.Name, primaryTypeModelType)
			if err != nil {
				return err
			}

			m.SetString(propClassName, mt.ClassName)
			m.SetString(propCategory, mt.Category)
			n.SetStrings(propPendingClasses, candidateStrings(pending))

			return nil
		},
		func() {
			r.addModelType(mt)
			r.pending = pending
		},
	)
}
