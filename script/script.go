// Package script holds the minimal script boundary the execution core
// consumes. Script and category CRUD live outside this core; dispatch needs
// the runner resolution fields and the tracker needs version numbers.
package script

// Script is the descriptor the execution core needs to route and run a
// script. Code is the body of the version being executed.
type Script struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	CategoryID    string            `json:"categoryId,omitempty"`
	RunnerHostID  string            `json:"runnerHostId,omitempty"`
	InheritRunner bool              `json:"inheritRunner"`
	Code          string            `json:"code"`
	Variables     map[string]string `json:"variables,omitempty"`
}

// Category supplies the inherited default runner for scripts that name none.
type Category struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	DefaultRunnerHostID string `json:"defaultRunnerHostId,omitempty"`
}
