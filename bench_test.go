package foreman

import (
	"testing"
)

// go test -bench=. -benchmem -cpuprofile=foreman.prof

const (
	nPos    = 9000
	nPosVel = 1000
)

func BenchmarkIterCursorGet(b *testing.B) {
	b.StopTimer()

	world := newTestWorld()

	world.CreateEntities(nPosVel, pos, vel)
	world.CreateEntities(nPos, pos)

	query, _ := world.RegisterQuery(Factory.NewQuery().And(vel, pos))
	cursor := Factory.NewCursor(query)

	b.StartTimer()

	for i := 0; i < b.N; i++ {
		for cursor.Next() {
			p := pos.GetFromCursor(cursor)
			v := vel.GetFromCursor(cursor)

			p.X += v.X
			p.Y += v.Y
		}
	}
}

func BenchmarkIterColumns(b *testing.B) {
	b.StopTimer()

	world := newTestWorld()

	world.CreateEntities(nPosVel, pos, vel)
	world.CreateEntities(nPos, pos)

	query, _ := world.RegisterQuery(Factory.NewQuery().And(vel, pos))

	b.StartTimer()

	for i := 0; i < b.N; i++ {
		for _, arch := range query.Archetypes() {
			arch.LockShared()
			positions, _ := pos.Column(arch)
			velocities, _ := vel.Column(arch)
			ps, vs := positions.Values(), velocities.Values()
			for row := range ps {
				ps[row].X += vs[row].X
				ps[row].Y += vs[row].Y
			}
			arch.UnlockShared()
		}
	}
}

func BenchmarkCreateDestroy(b *testing.B) {
	world := newTestWorld()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		entities, err := world.CreateEntities(100, pos, vel)
		if err != nil {
			b.Fatal(err)
		}
		if err := world.DestroyEntities(entities...); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMigration(b *testing.B) {
	world := newTestWorld()
	entities, _ := world.CreateEntities(1, pos)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := world.AddComponent(entities[0], vel); err != nil {
			b.Fatal(err)
		}
		if err := world.RemoveComponent(entities[0], vel); err != nil {
			b.Fatal(err)
		}
	}
}
