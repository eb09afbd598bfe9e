// Package harness runs commit scenarios against a throwaway sandbox.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: parent_link
//	description: "A new story becomes the parent of an existing task"
//	mode: twophases
//	seed:
//	  - type: Task
//	    project: Demo
//	    fields: { System.Title: Existing }
//	changeset:
//	  project: Demo
//	  items:
//	    - ref: story
//	      new: { type: User Story }
//	    - id: 1
//	      relations:
//	        - { rel: System.LinkTypes.Hierarchy-Reverse, to: story }
//	expect:
//	  created: 1
//	  updated: 1
//	assertions:
//	  - type: call_order
//	    methods: [GetWorkItems, ExecuteBatch]
//	  - type: final_state
//	    id: 1
//	    relations: 1
//
// Seeded items get ids 1, 2, … in order, so change sets and assertions can
// refer to them by number. Items created by the commit continue the
// sequence.
//
// # Assertion Types
//
//   - call_count: the method was called exactly count times
//   - call_order: the methods appear in this relative order
//   - final_state: the stored work item has the given fields, recycle bin
//     state and relation count
//
// # Deterministic Traces
//
// Every call the session makes is recorded. Traces are written one
// canonical JSON object per line, so RunWithGolden can compare them byte
// for byte with testdata/golden/<name>.golden.
package harness
