package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/lock"
)

// LockCmd represents the lock command - run-lock maintenance
var LockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect or clear the run lock",
	Long: `Inspect or clear the run lock.

Exactly one extraction run may touch the corpus at a time. The lock is
a small JSON file naming the holding run, its pid and host, and a
heartbeat the run refreshes while alive. A crashed run leaves the file
behind; clear removes it once the heartbeat is stale.

Examples:
  gleaner lock status         # Who holds it, and for how long
  gleaner lock clear          # Remove a stale lock
  gleaner lock clear --force  # Remove it even if it looks alive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds the run lock",
	RunE:  runLockStatus,
}

var lockClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove a stale run lock",
	Long: `Remove a stale run lock.

Refuses to remove a lock whose heartbeat is still inside the staleness
window unless --force is given. A live run heartbeats continuously, so
a fresh heartbeat almost always means the run is genuinely alive.`,
	RunE: runLockClear,
}

func init() {
	lockClearCmd.Flags().Bool("force", false, "Remove the lock even if the heartbeat is fresh")
	LockCmd.AddCommand(lockStatusCmd)
	LockCmd.AddCommand(lockClearCmd)
}

func runLockStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	info, err := lock.Inspect(cfg.GetLockDir())
	if err != nil {
		if errors.IsNotFoundError(err) {
			fmt.Println("No run holds the lock")
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	fmt.Printf("Held by run %s\n", info.RunID)
	fmt.Printf("  Host: %s (pid %d)\n", info.Hostname, info.PID)
	fmt.Printf("  Acquired: %s\n", info.AcquiredAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Heartbeat: %s ago\n", info.Age(now).Round(time.Second))
	if info.Stale(cfg.Lock.StaleAfter(), now) {
		fmt.Printf("  Stale: heartbeat older than %s, 'gleaner lock clear' will remove it\n",
			cfg.Lock.StaleAfter())
	}
	return nil
}

func runLockClear(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	info, err := lock.Clear(cfg.GetLockDir(), cfg.Lock.StaleAfter(), force)
	if err != nil {
		if errors.IsNotFoundError(err) {
			fmt.Println("No run holds the lock")
			return nil
		}
		return err
	}

	if info.RunID != "" {
		fmt.Printf("Cleared lock held by run %s (pid %d on %s)\n",
			info.RunID, info.PID, info.Hostname)
	} else {
		fmt.Println("Cleared unreadable lock file")
	}
	return nil
}
