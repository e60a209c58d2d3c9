// Command orderclient is a thin terminal front end over the client
// library, mainly for poking at a running backend: sign in, manage the
// cart, place and cancel orders, and watch the merged order view update
// as other contexts make changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/zaikapos/orderclient/admin"
	"github.com/zaikapos/orderclient/cart"
	"github.com/zaikapos/orderclient/config"
	"github.com/zaikapos/orderclient/lifecycle"
	"github.com/zaikapos/orderclient/orders"
	"github.com/zaikapos/orderclient/session"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	s, err := session.Open(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return cmdLogin(ctx, s, rest)
	case "logout":
		s.Logout()
		return nil
	case "cart":
		return cmdCart(ctx, s, rest)
	case "place":
		return cmdPlace(ctx, s, rest)
	case "orders":
		return cmdOrders(ctx, s)
	case "cancel":
		return cmdCancel(ctx, s, rest)
	case "admin":
		return cmdAdmin(ctx, s, rest)
	case "watch":
		return cmdWatch(ctx, s)
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: orderclient <command>

  login -email <email> -token <token>
  logout
  cart show | add <id> <name> <price> | dec <id> | rm <id>
  place [-notes <text>]
  orders
  cancel <order-id>
  admin list [-status <s>] [-search <q>] | set <order-id> <status>
  watch`)
}

func cmdLogin(ctx context.Context, s *session.Session, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	token := fs.String("token", "", "bearer token")
	fs.Parse(args)
	if *token == "" {
		return fmt.Errorf("login: -token is required")
	}
	if err := s.Login(ctx, *email, *token, ""); err != nil {
		return err
	}
	fmt.Println("signed in as", s.Identity())
	return nil
}

func cmdCart(ctx context.Context, s *session.Session, args []string) error {
	if len(args) == 0 || args[0] == "show" {
		if err := s.Cart().Load(ctx); err != nil {
			return err
		}
		for _, line := range s.Cart().Lines() {
			fmt.Printf("%3dx %-24s %8s\n", line.Quantity, line.Name, line.Subtotal().StringFixed(2))
		}
		fmt.Printf("total %s\n", s.Cart().Total().StringFixed(2))
		return nil
	}

	switch args[0] {
	case "add":
		if len(args) != 4 {
			return fmt.Errorf("cart add <id> <name> <price>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("cart add: bad menu item id %q", args[1])
		}
		price, err := decimal.NewFromString(args[3])
		if err != nil {
			return fmt.Errorf("cart add: bad price %q", args[3])
		}
		return s.Cart().Add(ctx, cart.MenuItem{ID: id, Name: args[2], Price: price})
	case "dec":
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("cart dec: bad menu item id %q", args[1])
		}
		return s.Cart().Decrement(ctx, id)
	case "rm":
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("cart rm: bad menu item id %q", args[1])
		}
		return s.Cart().Remove(ctx, id)
	default:
		return fmt.Errorf("unknown cart command %q", args[0])
	}
}

func cmdPlace(ctx context.Context, s *session.Session, args []string) error {
	fs := flag.NewFlagSet("place", flag.ExitOnError)
	notes := fs.String("notes", "", "order notes")
	fs.Parse(args)

	if err := s.Cart().Load(ctx); err != nil {
		return err
	}
	order, err := s.Orders().Place(ctx, s.Cart(), *notes)
	if err != nil {
		return err
	}
	fmt.Printf("order #%d placed, total %s\n", order.ID, order.Total.StringFixed(2))
	return nil
}

func cmdOrders(ctx context.Context, s *session.Session) error {
	list, err := s.Orders().List(ctx)
	if err != nil {
		return err
	}
	printOrders(list)
	return nil
}

func cmdCancel(ctx context.Context, s *session.Session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("cancel <order-id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("cancel: bad order id %q", args[0])
	}
	list, err := s.Orders().List(ctx)
	if err != nil {
		return err
	}
	for _, o := range list {
		if o.ID == id {
			if _, err := s.Orders().Cancel(ctx, o); err != nil {
				return err
			}
			fmt.Printf("order #%d cancelled\n", id)
			return nil
		}
	}
	return fmt.Errorf("order #%d not found", id)
}

func cmdAdmin(ctx context.Context, s *session.Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("admin list | admin set <order-id> <status>")
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("admin list", flag.ExitOnError)
		status := fs.String("status", "", "filter by status")
		search := fs.String("search", "", "filter by customer")
		fs.Parse(args[1:])
		list, err := s.Admin().List(ctx, admin.Filter{
			Status: lifecycle.Status(*status),
			Search: *search,
		})
		if err != nil {
			return err
		}
		printOrders(list)
		return nil
	case "set":
		if len(args) != 3 {
			return fmt.Errorf("admin set <order-id> <status>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("admin set: bad order id %q", args[1])
		}
		if _, err := s.Admin().List(ctx, admin.Filter{}); err != nil {
			return err
		}
		for _, o := range s.Admin().Current() {
			if o.ID == id {
				return s.Admin().SetStatus(ctx, o, lifecycle.Status(args[2]))
			}
		}
		return fmt.Errorf("order #%d not found", id)
	default:
		return fmt.Errorf("unknown admin command %q", args[0])
	}
}

func cmdWatch(ctx context.Context, s *session.Session) error {
	fmt.Println("watching orders; ctrl-c to stop")
	s.Poll(ctx, func(view []orders.Order) {
		fmt.Println("---")
		printOrders(view)
	})
	return nil
}

func printOrders(list []orders.Order) {
	for _, o := range list {
		id := "draft"
		if o.HasServerID() {
			id = fmt.Sprintf("#%d", o.ID)
		}
		fmt.Printf("%-8s %-12s %8s  %s\n", id, lifecycle.Display(o.Status), o.Total.StringFixed(2), o.Customer)
	}
}
