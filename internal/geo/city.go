package geo

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

// City is a point in the plane. Identity is its index in the city list.
type City struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance between two cities
func (c City) DistanceTo(o City) float64 {
	return math.Hypot(c.X-o.X, c.Y-o.Y)
}

// Finite reports whether both coordinates are finite numbers
func (c City) Finite() bool {
	return !math.IsNaN(c.X) && !math.IsInf(c.X, 0) && !math.IsNaN(c.Y) && !math.IsInf(c.Y, 0)
}

// FromPairs converts [x, y] pairs (the JSON job format) to cities
func FromPairs(pairs [][2]float64) []City {
	cities := make([]City, len(pairs))
	for i, p := range pairs {
		cities[i] = City{X: p[0], Y: p[1]}
	}
	return cities
}

// ToPairs is the inverse of FromPairs
func ToPairs(cities []City) [][2]float64 {
	pairs := make([][2]float64, len(cities))
	for i, c := range cities {
		pairs[i] = [2]float64{c.X, c.Y}
	}
	return pairs
}

// RandomCities places n cities uniformly in the rectangle [0,width) x [0,height)
func RandomCities(n int, width, height float64, rng *rand.Rand) []City {
	cities := make([]City, n)
	for i := range cities {
		cities[i] = City{X: rng.Float64() * width, Y: rng.Float64() * height}
	}
	return cities
}

// ReadCities parses one "x,y" coordinate pair per line.
// Blank lines and lines starting with '#' are skipped.
func ReadCities(r io.Reader) ([]City, error) {
	var cities []City

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected \"x,y\", got %q", lineNo, line)
		}

		x, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid x coordinate: %w", lineNo, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid y coordinate: %w", lineNo, err)
		}

		cities = append(cities, City{X: x, Y: y})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cities: %w", err)
	}

	return cities, nil
}

// LoadCities reads a coordinate file from disk
func LoadCities(path string) ([]City, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cities file: %w", err)
	}
	defer f.Close()

	return ReadCities(f)
}

// WriteCities writes cities in the format accepted by ReadCities
func WriteCities(w io.Writer, cities []City) error {
	bw := bufio.NewWriter(w)
	for _, c := range cities {
		if _, err := fmt.Fprintf(bw, "%s,%s\n",
			strconv.FormatFloat(c.X, 'g', -1, 64),
			strconv.FormatFloat(c.Y, 'g', -1, 64),
		); err != nil {
			return fmt.Errorf("failed to write city: %w", err)
		}
	}
	return bw.Flush()
}
