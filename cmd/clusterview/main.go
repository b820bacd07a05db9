package main

import (
    "log"

    "github.com/spf13/cobra"

    monitorcli "github.com/amirimatin/clusterview/pkg/cli"
)

func main() {
    if err := newRoot().Execute(); err != nil {
        log.Fatal(err)
    }
}

func newRoot() *cobra.Command {
    root := &cobra.Command{
        Use:           "clusterview",
        Short:         "cluster membership monitor",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    // Attach all monitor commands from pkg/cli for reuse in services
    monitorcli.AddAll(root)
    return root
}
