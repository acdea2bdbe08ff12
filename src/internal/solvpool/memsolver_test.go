package solvpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemSolverCleanInstall(t *testing.T) {
	pool := New("x86_64")
	repo := pool.AddRepo("repo1", 99)
	foo := &Solvable{ID: pool.Intern("foo-1.0-1.x86_64"), Name: "foo", EVR: "1.0-1", Arch: "x86_64"}
	pool.AddSolvable(repo, foo)

	solver := NewMemSolver(pool)
	fooID := pool.Intern("foo")
	jobs := []Job{{Selector: SelectorName, What: fooID, Mod: ModInstall}}
	problems := solver.Solve(jobs)
	require.Empty(t, problems)

	txn := solver.Transaction()
	require.Len(t, txn.Steps, 1)
	require.Equal(t, StepInstall, txn.Steps[0].Class)
	require.Equal(t, "foo", txn.Steps[0].Solvable.Name)
}

func TestMemSolverConflictOffersTwoSolutions(t *testing.T) {
	pool := New("x86_64")
	repo := pool.AddRepo("repo1", 99)
	a := &Solvable{ID: pool.Intern("a-1-1.x86_64"), Name: "a", EVR: "1-1", Arch: "x86_64", Conflicts: []string{"b"}}
	b := &Solvable{ID: pool.Intern("b-1-1.x86_64"), Name: "b", EVR: "1-1", Arch: "x86_64"}
	pool.AddSolvable(repo, a)
	pool.AddSolvable(repo, b)

	solver := NewMemSolver(pool)
	jobs := []Job{
		{Selector: SelectorName, What: pool.Intern("a"), Mod: ModInstall},
		{Selector: SelectorName, What: pool.Intern("b"), Mod: ModInstall},
	}
	problems := solver.Solve(jobs)
	require.Len(t, problems, 1)
	require.Equal(t, RulePackageConflict, problems[0].Rule)
	require.Len(t, problems[0].Solutions, 2)

	// apply solution 1: skip job 1 (the conflicting "b" request)
	jobs[1].Mod = ModNoop
	problems = solver.Solve(jobs)
	require.Empty(t, problems)
	require.Len(t, solver.Transaction().Steps, 1)
}

func TestPoolInternIsIdempotent(t *testing.T) {
	pool := New("x86_64")
	id1 := pool.Intern("foo")
	id2 := pool.Intern("foo")
	require.Equal(t, id1, id2)
	require.Equal(t, "foo", pool.String(id1))
}
