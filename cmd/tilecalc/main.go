// tilecalc is a throwaway calculator for tile math: feed it world
// coordinates and it prints the base cell and the aggregate tile that
// covers it at each level.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

func main() {
	var (
		regionSize = flag.Int("region_size", 256, "region size in grid units")
		levels     = flag.Int("levels", 3, "pyramid levels to show")
	)
	flag.Parse()

	fmt.Printf("Tile calculator, region size %d. Enter x,y per line.\n", *regionSize)
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			fmt.Printf("invalid input: %s\n", line)
			continue
		}
		x, errX := strconv.Atoi(strings.TrimSpace(fields[0]))
		y, errY := strconv.Atoi(strings.TrimSpace(fields[1]))
		if errX != nil || errY != nil {
			fmt.Printf("invalid input: %s\n", line)
			continue
		}
		if x%*regionSize != 0 || y%*regionSize != 0 {
			fmt.Printf("not a multiple of %d\n", *regionSize)
			continue
		}
		cx, cy := x / *regionSize, y / *regionSize
		fmt.Printf("cell (%d, %d)\n", cx, cy)
		for lod := 1; lod <= *levels; lod++ {
			span := 1 << lod
			ax, ay := (cx/span)*span, (cy/span)*span
			fmt.Printf("  lod %d tile at (%d, %d), %d units square\n",
				lod, ax**regionSize, ay**regionSize, span**regionSize)
		}
	}
}
