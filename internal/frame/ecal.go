package frame

import (
	"fmt"

	"govna/internal/scpi"
)

// ecalPorts maps ECal path letters to test port numbers.
var ecalPorts = map[byte]int{'a': 1, 'b': 2, 'c': 3, 'd': 4}

// ECalPathLayout builds the layout of one ECal characterization path block:
// a frequency block followed by full real/imaginary block pairs. Single-port
// paths ("a", "b", ...) carry that port's reflection; two-port paths ("ab",
// "cd", ...) carry the full 2x2 grid in destination-major order.
func ECalPathLayout(path string, points int) (Layout, error) {
	pairs, err := ecalPathPairs(path)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Points: points, Pairs: pairs, FreqBlock: true}, nil
}

func ecalPathPairs(path string) ([]PortPair, error) {
	switch len(path) {
	case 1:
		p, ok := ecalPorts[path[0]]
		if !ok {
			return nil, &scpi.ValidationError{Field: "ecal path", Value: path, Reason: "unknown port letter"}
		}
		return []PortPair{{p, p}}, nil
	case 2:
		p1, ok1 := ecalPorts[path[0]]
		p2, ok2 := ecalPorts[path[1]]
		if !ok1 || !ok2 || p1 == p2 {
			return nil, &scpi.ValidationError{Field: "ecal path", Value: path, Reason: "unknown port pair"}
		}
		return []PortPair{{p1, p1}, {p1, p2}, {p2, p1}, {p2, p2}}, nil
	default:
		return nil, &scpi.ValidationError{Field: "ecal path", Value: path, Reason: "must name one or two ports"}
	}
}

// ECalPaths lists the path names a module with the given port count exposes,
// in instrument order.
func ECalPaths(numPorts int) ([]string, error) {
	switch numPorts {
	case 2:
		return []string{"a", "b", "ab"}, nil
	case 4:
		return []string{"a", "b", "ab", "c", "d", "ac", "ad", "bc", "bd", "cd"}, nil
	default:
		return nil, &scpi.ValidationError{Field: "ecal ports", Value: fmt.Sprint(numPorts), Reason: "must be 2 or 4"}
	}
}
