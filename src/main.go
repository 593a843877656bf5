package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"malh/src/helpers"
	"malh/src/malh"
	"malh/src/settings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// printUsage prints helpful usage information
func printUsage() {
	fmt.Println("malhtool - a multi-attribute linear hash index")
	fmt.Println("\nUsage:")
	fmt.Println("  malhtool <command> [options] <relation>")
	fmt.Println("\nCommands:")
	fmt.Println("  create  -nattrs=N -npages=N -depth=N -cv=SPEC  <relation>")
	fmt.Println("  insert  [-file=NAME]                           <relation>")
	fmt.Println("  query   <relation> <template>")
	fmt.Println("  stats   <relation>")
	fmt.Println("  drop    <relation>")
	fmt.Println("\nOptions:")
	flag.PrintDefaults()
}

func newLogger(debug bool) *zap.SugaredLogger {
	var logger *zap.Logger
	var err error

	if debug {
		z := zap.NewDevelopmentConfig()
		z.OutputPaths = []string{"stdout"}
		logger, err = z.Build()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)
	return logger.Sugar()
}

func main() {
	args := settings.GetSettings()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	fs.StringVar(&args.DataDir, "datadir", "./datafiles", "directory for relation files")
	fs.BoolVar(&args.Debug, "debug", false, "enable verbose development logging")
	fs.IntVar(&args.PageSize, "pagesize", 8192, "bytes per page")
	nattrs := fs.Int("nattrs", 0, "number of attributes (create)")
	npages := fs.Int("npages", 1, "initial number of primary pages (create)")
	depth := fs.Int("depth", 0, "initial directory depth (create)")
	cv := fs.String("cv", "", "choice vector, e.g. \"0.0,1.0,0.1,1.1\" (create)")
	file := fs.String("file", "", "read tuples to insert from this file (resolved under -datadir) instead of stdin")
	fs.Parse(os.Args[2:])

	logger := newLogger(args.Debug)
	defer logger.Sync()
	runID := helpers.GenerateUUID()
	logger = logger.With("run_id", runID)

	rest := fs.Args()
	if len(rest) < 1 {
		printUsage()
		os.Exit(1)
	}
	if err := os.MkdirAll(args.DataDir, 0755); err != nil {
		logger.Errorf("failed to create data directory: %v", err)
		os.Exit(1)
	}
	path := args.DataDir + string(os.PathSeparator) + rest[0]

	var err error
	switch command {
	case "create":
		err = runCreate(path, *nattrs, *npages, *depth, *cv, args.PageSize, logger)
	case "insert":
		err = runInsert(path, args.DataDir, *file, args.PageSize, logger)
	case "query":
		if len(rest) < 2 {
			err = fmt.Errorf("query requires a template argument")
			break
		}
		err = runQuery(path, rest[1], args.PageSize, logger)
	case "stats":
		err = runStats(path, args.PageSize, logger)
	case "drop":
		err = runDrop(path, logger)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Errorf("%s failed: %v", command, err)
		os.Exit(1)
	}
}

func runCreate(path string, nattrs, npages, depth int, cv string, pageSize int, logger *zap.SugaredLogger) error {
	if nattrs < 1 {
		return fmt.Errorf("-nattrs must be given and positive")
	}
	if cv == "" {
		return fmt.Errorf("-cv must be given")
	}
	if helpers.FileExists(path+".info", logger) {
		return fmt.Errorf("relation %s already exists", path)
	}
	return malh.CreateRelation(path, nattrs, npages, depth, cv, pageSize, logger)
}

func runInsert(path, dataDir, file string, pageSize int, logger *zap.SugaredLogger) error {
	r, err := malh.OpenRelation(path, 'w', pageSize, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	in := os.Stdin
	if file != "" {
		f, err := helpers.OpenDataFile(dataDir, file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	count := 0
	for scanner.Scan() {
		line := helpers.StripQuotes(scanner.Text())
		if line == "" {
			continue
		}
		if _, err := r.AddToRelation(line); err != nil {
			return fmt.Errorf("insert %q: %w", line, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	logger.Infof("inserted %d tuples into %s", count, path)
	return nil
}

func runQuery(path, template string, pageSize int, logger *zap.SugaredLogger) error {
	r, err := malh.OpenRelation(path, 'r', pageSize, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	cursor, err := malh.StartQuery(r, template)
	if err != nil {
		return err
	}
	defer cursor.Close()

	found := 0
	for {
		tuple, ok, err := cursor.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		fmt.Println(string(tuple))
		found++
	}
	logger.Infof("query %q matched %d tuples", template, found)
	return nil
}

func runStats(path string, pageSize int, logger *zap.SugaredLogger) error {
	r, err := malh.OpenRelation(path, 'r', pageSize, logger)
	if err != nil {
		return err
	}
	defer r.Close()
	fmt.Printf("as of %s\n", helpers.TimeNow())
	return r.Stats(os.Stdout)
}

func runDrop(path string, logger *zap.SugaredLogger) error {
	if !helpers.FileExists(path+".info", logger) {
		return fmt.Errorf("relation %s does not exist", path)
	}
	var errs error
	for _, suffix := range []string{".info", ".data", ".ovflow"} {
		errs = multierr.Append(errs, helpers.DeleteDataFile(path+suffix))
	}
	if errs != nil {
		return fmt.Errorf("drop %s: %w", path, errs)
	}
	logger.Infof("dropped relation %s", path)
	return nil
}
