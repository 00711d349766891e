package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/lanemc/swarmmem/memory"
	"github.com/lanemc/swarmmem/observability"
	"github.com/lanemc/swarmmem/swarm"
)

type genericFlags struct {
	namespace string
	limit     int
	ttl       time.Duration
}

func runGeneric(ctx context.Context, cfg memory.Config, observer observability.Observer, op string, args []string, flags genericFlags) error {
	engine, err := memory.NewEngine(&cfg, memory.WithObserver(observer))
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	switch op {
	case "store":
		if len(args) != 2 {
			return errors.New("usage: store <key> <value>")
		}
		entry, err := engine.Store(ctx, args[0], memory.StringValue(args[1]), memory.StoreOptions{
			Namespace: flags.namespace,
			TTL:       flags.ttl,
		})
		if err != nil {
			return err
		}
		fmt.Printf("stored %s/%s (%d bytes)\n", entry.Namespace, entry.Key, entry.Size)
		return nil

	case "get":
		if len(args) != 1 {
			return errors.New("usage: get <key>")
		}
		entry, err := engine.Retrieve(ctx, args[0], memory.RetrieveOptions{Namespace: flags.namespace})
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("key %q not found", args[0])
		}
		fmt.Println(entry.Value.Text())
		for _, k := range slices.Sorted(maps.Keys(entry.Metadata)) {
			fmt.Printf("  %s=%s\n", k, entry.Metadata[k])
		}
		return nil

	case "list":
		entries, err := engine.List(ctx, memory.ListOptions{Namespace: flags.namespace, Limit: flags.limit})
		if err != nil {
			return err
		}
		for _, entry := range entries {
			printEntry(entry)
		}
		return nil

	case "search":
		if len(args) != 1 {
			return errors.New("usage: search <pattern>")
		}
		entries, err := engine.Search(ctx, args[0], memory.SearchOptions{Namespace: flags.namespace, Limit: flags.limit})
		if err != nil {
			return err
		}
		for _, entry := range entries {
			printEntry(entry)
		}
		return nil

	case "delete":
		if len(args) != 1 {
			return errors.New("usage: delete <key>")
		}
		deleted, err := engine.Delete(ctx, args[0], memory.DeleteOptions{Namespace: flags.namespace})
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Printf("no entry %q\n", args[0])
			return nil
		}
		fmt.Printf("deleted %q\n", args[0])
		return nil

	case "cleanup":
		removed, err := engine.Cleanup(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired entries\n", removed)
		return nil

	case "stats":
		stats, err := engine.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)

	case "backup":
		if len(args) != 1 {
			return errors.New("usage: backup <path>")
		}
		info, err := engine.Backup(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("backed up %d entries across %d namespaces to %s\n", info.Entries, info.Namespaces, info.Path)
		return nil

	default:
		return fmt.Errorf("operation %q is not available in generic mode", op)
	}
}

func runSwarm(ctx context.Context, cfg memory.Config, observer observability.Observer, op string, args []string, limit int) error {
	m, err := swarm.New(&swarm.Config{Memory: cfg}, swarm.WithObserver(observer))
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	switch op {
	case "store":
		if len(args) != 2 {
			return errors.New("usage: store <agent|task|pattern|message|consensus> <json>")
		}
		return storeSwarmRecord(ctx, m, args[0], []byte(args[1]))

	case "get":
		if len(args) != 1 {
			return errors.New("usage: get <id>")
		}
		return getSwarmRecord(ctx, m, args[0])

	case "list":
		messages, err := m.ListMessages(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Printf("agents:\n")
		for _, agent := range m.ListAgents("") {
			fmt.Printf("  %s  type=%s status=%s\n", agent.ID, agent.Type, agent.Status)
		}
		fmt.Printf("tasks:\n")
		for _, task := range m.ListTasks("") {
			fmt.Printf("  %s  status=%s priority=%d\n", task.ID, task.Status, task.Priority)
		}
		fmt.Printf("patterns:\n")
		for _, pattern := range m.ListPatterns() {
			fmt.Printf("  %s  type=%s confidence=%.2f uses=%d\n",
				pattern.ID, pattern.Type, pattern.Confidence, pattern.UsageCount)
		}
		fmt.Printf("messages:\n")
		for _, message := range messages {
			fmt.Printf("  %s  %s -> %s at %s\n",
				message.ID, message.From, message.To, message.SentAt.Format(time.RFC3339))
		}
		return nil

	case "cleanup":
		report, err := m.CleanupSwarmData(ctx, swarm.CleanupOptions{})
		if err != nil {
			return err
		}
		return printJSON(report)

	case "stats":
		stats, err := m.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stats)

	case "backup":
		if len(args) != 1 {
			return errors.New("usage: backup <path>")
		}
		info, err := m.Engine().Backup(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("backed up %d entries across %d namespaces to %s\n", info.Entries, info.Namespaces, info.Path)
		return nil

	case "export":
		if len(args) != 1 {
			return errors.New("usage: export <path>")
		}
		snapshot, err := m.ExportState(ctx)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], data, 0o644); err != nil {
			return err
		}
		fmt.Printf("exported %d agents, %d tasks, %d patterns to %s\n",
			len(snapshot.Agents), len(snapshot.Tasks), len(snapshot.Patterns), args[0])
		return nil

	case "import":
		if len(args) != 1 {
			return errors.New("usage: import <path>")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var snapshot swarm.Snapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return fmt.Errorf("parse snapshot: %w", err)
		}
		if err := m.ImportState(ctx, &snapshot); err != nil {
			return err
		}
		fmt.Printf("imported %d agents, %d tasks, %d patterns from %s\n",
			len(snapshot.Agents), len(snapshot.Tasks), len(snapshot.Patterns), args[0])
		return nil

	default:
		return fmt.Errorf("operation %q is not available in swarm mode", op)
	}
}

func storeSwarmRecord(ctx context.Context, m *swarm.Memory, kind string, payload []byte) error {
	switch kind {
	case "agent":
		var record swarm.AgentRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("parse agent: %w", err)
		}
		stored, err := m.StoreAgent(ctx, &record)
		if err != nil {
			return err
		}
		fmt.Println(stored.ID)
		return nil

	case "task":
		var record swarm.TaskRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("parse task: %w", err)
		}
		stored, err := m.StoreTask(ctx, &record)
		if err != nil {
			return err
		}
		fmt.Println(stored.ID)
		return nil

	case "pattern":
		var record swarm.LearnedPattern
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("parse pattern: %w", err)
		}
		stored, err := m.StorePattern(ctx, &record)
		if err != nil {
			return err
		}
		fmt.Println(stored.ID)
		return nil

	case "message":
		var record swarm.Message
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("parse message: %w", err)
		}
		stored, err := m.StoreMessage(ctx, &record)
		if err != nil {
			return err
		}
		fmt.Println(stored.ID)
		return nil

	case "consensus":
		var record swarm.ConsensusRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return fmt.Errorf("parse consensus: %w", err)
		}
		stored, err := m.StoreConsensus(ctx, &record)
		if err != nil {
			return err
		}
		fmt.Println(stored.ID)
		return nil

	default:
		return fmt.Errorf("unknown record kind %q", kind)
	}
}

func getSwarmRecord(ctx context.Context, m *swarm.Memory, id string) error {
	switch {
	case strings.HasPrefix(id, "agent-"):
		record, err := m.GetAgent(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(record)
	case strings.HasPrefix(id, "task-"):
		record, err := m.GetTask(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(record)
	case strings.HasPrefix(id, "pattern-"):
		record, err := m.GetPattern(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(record)
	case strings.HasPrefix(id, "consensus-"):
		record, err := m.GetConsensus(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(record)
	default:
		return fmt.Errorf("cannot infer record kind from id %q", id)
	}
}

func printEntry(entry *memory.Entry) {
	fmt.Printf("%s/%s  kind=%s size=%dB reads=%d updated=%s\n",
		entry.Namespace, entry.Key, entry.Value.Kind(), entry.Size, entry.AccessCount,
		entry.UpdatedAt.Format(time.RFC3339))
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
