package toolchain

import (
	"bufio"
	"context"
	"strings"
)

// AttachedBoard is one row of `arduino-cli board list`.
type AttachedBoard struct {
	Port     string
	Protocol string
	Type     string
	Name     string
	FQBN     string
	Core     string
}

// ListAttached runs `arduino-cli board list` and parses the table.
func ListAttached(ctx context.Context, runner Runner) ([]AttachedBoard, error) {
	res, err := runner.Run(ctx, ToolArduinoCLI, BoardListArgs()...)
	if err != nil {
		return nil, err
	}
	return parseBoardList(res.Stdout), nil
}

// parseBoardList slices each row at the column offsets of the header, since
// board names contain spaces.
func parseBoardList(output string) []AttachedBoard {
	columns := []string{"Port", "Protocol", "Type", "Board Name", "FQBN", "Core"}

	var boards []AttachedBoard
	var offsets []int
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if offsets == nil {
			if !strings.HasPrefix(line, "Port") {
				continue
			}
			offsets = make([]int, len(columns))
			for i, col := range columns {
				offsets[i] = strings.Index(line, col)
			}
			continue
		}

		fields := make([]string, len(columns))
		for i := range columns {
			start := offsets[i]
			if start < 0 || start >= len(line) {
				continue
			}
			end := len(line)
			for j := i + 1; j < len(columns); j++ {
				if offsets[j] > start {
					end = min(offsets[j], len(line))
					break
				}
			}
			fields[i] = strings.TrimSpace(line[start:end])
		}
		if fields[0] == "" {
			continue
		}
		boards = append(boards, AttachedBoard{
			Port:     fields[0],
			Protocol: fields[1],
			Type:     fields[2],
			Name:     fields[3],
			FQBN:     fields[4],
			Core:     fields[5],
		})
	}
	return boards
}
