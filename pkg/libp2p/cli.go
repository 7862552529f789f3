package libp2p

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StartCLI runs the interactive command loop until /quit or EOF.
func (n *ShelfNode) StartCLI() {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Printf("\n✅ GoShelf P2P Book Catalog Started!\n")
	fmt.Printf("Commands:\n")
	fmt.Printf("  /add <title>|<author>|<publisher> - Add a book to your library\n")
	fmt.Printf("  /update <id> <title>|<author>|<publisher> - Edit one of your books\n")
	fmt.Printf("  /share <id-or-title>              - Publish a book to the network\n")
	fmt.Printf("  /books                            - List your local books\n")
	fmt.Printf("  /shared [peer-id]                 - List shared books, optionally one peer's\n")
	fmt.Printf("  /peers                            - List known peers\n")
	fmt.Printf("  /connect <addr>                   - Connect to a peer manually\n")
	fmt.Printf("  /id                               - Show this node's peer id\n")
	fmt.Printf("  /quit                             - Exit\n")
	fmt.Print("> ")

	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			fmt.Print("> ")
			continue
		}

		switch {
		case input == "/quit":
			fmt.Println("🔌 Shutting down node...")
			return

		case strings.HasPrefix(input, "/add "):
			title, author, publisher, ok := splitBookFields(input[5:])
			if !ok {
				fmt.Println("Usage: /add <title>|<author>|<publisher>")
				break
			}
			rec, err := n.CreateBook(title, author, publisher)
			if err != nil {
				fmt.Printf("❌ Failed to add book: %v\n", err)
			} else {
				fmt.Printf("✅ Added \"%s\" (%s)\n", rec.Title, rec.ID)
			}

		case strings.HasPrefix(input, "/update "):
			parts := strings.SplitN(strings.TrimSpace(input[8:]), " ", 2)
			if len(parts) < 2 {
				fmt.Println("Usage: /update <id> <title>|<author>|<publisher>")
				break
			}
			title, author, publisher, ok := splitBookFields(parts[1])
			if !ok {
				fmt.Println("Usage: /update <id> <title>|<author>|<publisher>")
				break
			}
			rec, err := n.UpdateBook(parts[0], title, author, publisher)
			if err != nil {
				fmt.Printf("❌ Failed to update book: %v\n", err)
			} else {
				fmt.Printf("✅ Updated \"%s\" (v%d)\n", rec.Title, rec.Version)
			}

		case strings.HasPrefix(input, "/share "):
			rec, err := n.PublishBook(strings.TrimSpace(input[7:]))
			if err != nil {
				fmt.Printf("❌ Failed to share book: %v\n", err)
			} else {
				fmt.Printf("📢 Now sharing \"%s\" (v%d)\n", rec.Title, rec.Version)
			}

		case input == "/books":
			books := n.ListLocalBooks()
			if len(books) == 0 {
				fmt.Println("Your library is empty. Use /add to create a book.")
				break
			}
			fmt.Printf("📚 Local books (%d):\n", len(books))
			for _, rec := range books {
				fmt.Printf("  - [%s] \"%s\" by %s (%s, %s, v%d)\n",
					rec.ID, rec.Title, rec.Author, rec.Publisher,
					rec.Visibility, rec.Version)
			}

		case strings.HasPrefix(input, "/shared "):
			owner := strings.TrimSpace(input[8:])
			books := n.ListSharedBooksBy(owner)
			if len(books) == 0 {
				fmt.Printf("No shared books known from %s.\n", shortID(owner))
				break
			}
			fmt.Printf("📚 Shared books from %s (%d):\n", shortID(owner), len(books))
			for _, rec := range books {
				fmt.Printf("  - [%s] \"%s\" by %s (%s, v%d)\n",
					rec.ID, rec.Title, rec.Author, rec.Publisher, rec.Version)
			}

		case input == "/shared":
			books := n.ListSharedBooks()
			if len(books) == 0 {
				fmt.Println("No shared books known yet.")
				break
			}
			fmt.Printf("📚 Shared books (%d):\n", len(books))
			for _, rec := range books {
				fmt.Printf("  - [%s] \"%s\" by %s (%s, v%d, owner %s)\n",
					rec.ID, rec.Title, rec.Author, rec.Publisher,
					rec.Version, shortID(rec.Owner))
			}

		case input == "/peers":
			peers := n.ListPeers()
			fmt.Printf("📊 Network Status: %d connected, %d known peers\n",
				len(n.host.Network().Peers()), len(peers))
			for _, p := range peers {
				fmt.Printf("  - %s (%s, seen %s)\n",
					p.ID.String(), p.State, p.LastSeen.Format("15:04:05"))
			}

		case strings.HasPrefix(input, "/connect "):
			if err := n.ConnectToPeer(strings.TrimSpace(input[9:])); err != nil {
				fmt.Printf("❌ Connection failed: %v\n", err)
			} else {
				fmt.Printf("✅ Connected successfully\n")
			}

		case input == "/id":
			fmt.Printf("🆔 %s\n", n.host.ID().String())
			for _, addr := range n.host.Addrs() {
				fmt.Printf("   %s/p2p/%s\n", addr, n.host.ID().String())
			}

		default:
			fmt.Println("Unknown command. See the list above.")
		}
		fmt.Print("> ")
	}
}

// splitBookFields parses the original "title|author|publisher" input form.
func splitBookFields(s string) (title, author, publisher string, ok bool) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return "", "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]),
		strings.TrimSpace(parts[2]), true
}

// StartShelf is the main entry point: build a node, bootstrap it and
// hand control to the CLI.
func StartShelf(port int, opts ...Option) error {
	node, err := NewShelfNode(port, opts...)
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			node.logger.Warn("error closing node", zap.Error(err))
		}
	}()

	fmt.Printf("🆔 Peer ID: %s\n", node.host.ID().String())
	fmt.Printf("🌐 Listening on:\n")
	for _, addr := range node.host.Addrs() {
		fmt.Printf("   %s/p2p/%s\n", addr, node.host.ID().String())
	}

	if err := node.Bootstrap(); err != nil {
		return fmt.Errorf("failed to bootstrap: %w", err)
	}

	// Give discovery a moment before taking input.
	time.Sleep(2 * time.Second)

	node.StartCLI()
	return nil
}
