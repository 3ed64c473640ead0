package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/transitwpg/transitwpg/pkg/analysis"
	"github.com/transitwpg/transitwpg/pkg/database"
)

// SetupServer serves the read-only analysis API backed by the analytical
// store. Every endpoint queries the prebuilt agg_ tables and views.
func SetupServer(db *database.Database, listen string) error {
	return newApp(db).Listen(listen)
}

func newApp(db *database.Database) *fiber.App {
	webApp := fiber.New()
	webApp.Use(NewLogger())

	group := webApp.Group("/core")

	group.Get("/status", getStatus(db))

	group.Get("/coverage/neighbourhoods", getNeighbourhoodCoverage(db))
	group.Get("/coverage/underserved", getUnderserved(db))

	group.Get("/network/stats", getNetworkStats(db))
	group.Get("/network/hubs", getHubs(db))

	group.Get("/frequency/summary", getFrequencySummary(db))

	return webApp
}

func getStatus(db *database.Database) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tables, err := db.ListTables("%")
		if err != nil {
			return serverError(c, err)
		}

		counts := fiber.Map{}
		for _, table := range tables {
			if count, err := db.CountRows(table); err == nil {
				counts[table] = count
			}
		}

		return c.JSON(fiber.Map{
			"database": db.Path,
			"tables":   counts,
		})
	}
}

func getNeighbourhoodCoverage(db *database.Database) fiber.Handler {
	return func(c *fiber.Ctx) error {
		areas, err := analysis.StopsPerNeighbourhood(db)
		if err != nil {
			return serverError(c, err)
		}

		return c.JSON(fiber.Map{"neighbourhoods": areas})
	}
}

func getUnderserved(db *database.Database) fiber.Handler {
	return func(c *fiber.Ctx) error {
		percentile, err := strconv.ParseFloat(c.Query("percentile", "25"), 64)
		if err != nil || percentile < 0 || percentile > 100 {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{"error": "percentile must be between 0 and 100"})
		}

		areas, err := analysis.Underserved(db, percentile)
		if err != nil {
			return serverError(c, err)
		}

		return c.JSON(fiber.Map{
			"percentile":     percentile,
			"neighbourhoods": areas,
		})
	}
}

func getNetworkStats(db *database.Database) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := analysis.ComputeNetworkStats(db)
		if err != nil {
			return serverError(c, err)
		}

		return c.JSON(stats)
	}
}

func getHubs(db *database.Database) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := strconv.Atoi(c.Query("n", "20"))
		if err != nil || n <= 0 {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{"error": "n must be a positive integer"})
		}

		hubs, err := analysis.TopHubs(db, n)
		if err != nil {
			return serverError(c, err)
		}

		return c.JSON(fiber.Map{"hubs": hubs})
	}
}

func getFrequencySummary(db *database.Database) fiber.Handler {
	return func(c *fiber.Ctx) error {
		summary, err := analysis.ComputeFrequencySummary(db)
		if err != nil {
			return serverError(c, err)
		}

		return c.JSON(summary)
	}
}

func serverError(c *fiber.Ctx, err error) error {
	c.SendStatus(fiber.StatusInternalServerError)
	return c.JSON(fiber.Map{"error": err.Error()})
}
