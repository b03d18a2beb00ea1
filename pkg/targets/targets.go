// Package targets maps Nomad allocations to Alloy log file targets.
package targets

import (
	"sort"
	"strings"

	"github.com/cloudless/alloy-discovery/pkg/nomad"
)

// Log streams written by Nomad's logmon for every task
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Streams lists the streams scraped per task, in output order
var Streams = []string{StreamStdout, StreamStderr}

// Label keys, in the order they are rendered
const (
	LabelPath      = "__path__"
	LabelJob       = "job"
	LabelTaskGroup = "task_group"
	LabelTask      = "task"
	LabelAllocID   = "alloc_id"
	LabelNamespace = "namespace"
	LabelStream    = "stream"
	LabelNodeID    = "node_id"
)

// LabelKeys is the fixed key order of a rendered target
var LabelKeys = []string{
	LabelPath,
	LabelJob,
	LabelTaskGroup,
	LabelTask,
	LabelAllocID,
	LabelNamespace,
	LabelStream,
	LabelNodeID,
}

// Target is one log file to tail, with the labels attached to its lines
type Target struct {
	Path      string `json:"path" yaml:"path"`
	Stream    string `json:"stream" yaml:"stream"`
	Job       string `json:"job" yaml:"job"`
	TaskGroup string `json:"task_group" yaml:"task_group"`
	Task      string `json:"task" yaml:"task"`
	AllocID   string `json:"alloc_id" yaml:"alloc_id"`
	Namespace string `json:"namespace" yaml:"namespace"`
	NodeID    string `json:"node_id" yaml:"node_id"`
}

// Label is a single key/value pair of a target
type Label struct {
	Key   string
	Value string
}

// Labels returns the target's labels in LabelKeys order
func (t Target) Labels() []Label {
	return []Label{
		{LabelPath, t.Path},
		{LabelJob, t.Job},
		{LabelTaskGroup, t.TaskGroup},
		{LabelTask, t.Task},
		{LabelAllocID, t.AllocID},
		{LabelNamespace, t.Namespace},
		{LabelStream, t.Stream},
		{LabelNodeID, t.NodeID},
	}
}

// LogPath returns the file Nomad writes a task stream to:
// {logBaseDir}/{allocID}/alloc/logs/{task}.{stream}.0
// Trailing slashes on logBaseDir are dropped; nothing else is cleaned.
func LogPath(logBaseDir, allocID, task, stream string) string {
	return strings.TrimRight(logBaseDir, "/") + "/" + allocID + "/alloc/logs/" + task + "." + stream + ".0"
}

// Derive returns two targets, stdout then stderr, for every task of every
// running or pending allocation. Allocations keep their input order and
// tasks are sorted by name, so identical input renders identically.
func Derive(allocs []nomad.Allocation, logBaseDir string) []Target {
	targets := []Target{}

	for _, alloc := range allocs {
		if !alloc.Eligible() {
			continue
		}

		tasks := alloc.TaskNames()
		sort.Strings(tasks)

		for _, task := range tasks {
			for _, stream := range Streams {
				targets = append(targets, Target{
					Path:      LogPath(logBaseDir, alloc.ID, task, stream),
					Stream:    stream,
					Job:       alloc.JobID,
					TaskGroup: alloc.TaskGroup,
					Task:      task,
					AllocID:   alloc.ID,
					Namespace: alloc.Namespace,
					NodeID:    alloc.NodeID,
				})
			}
		}
	}

	return targets
}
